package valuemodel_test

import (
	"testing"

	"github.com/ErlanBelekov/dist-job-scheduler/internal/valuemodel"
)

func TestColumnRow(t *testing.T) {
	result := valuemodel.NewMap([]valuemodel.KV{
		{Key: "id", Value: valuemodel.NewArray([]valuemodel.Value{
			valuemodel.NewInt(1), valuemodel.NewInt(2), valuemodel.NewInt(3),
		})},
		{Key: "name", Value: valuemodel.NewArray([]valuemodel.Value{
			valuemodel.NewString("a"), valuemodel.NewString("b"),
		})},
	})

	if got := result.ColumnRow("id", 1); got.Int != 2 {
		t.Fatalf("expected id[1]=2, got %+v", got)
	}

	if got := result.ColumnRow("name", 5); !got.IsNull() {
		t.Fatalf("expected out-of-range row to be Null, got %+v", got)
	}

	if got := result.ColumnRow("missing", 0); !got.IsNull() {
		t.Fatalf("expected missing column to be Null, got %+v", got)
	}
}

func TestFanOutCount(t *testing.T) {
	result := valuemodel.NewMap([]valuemodel.KV{
		{Key: "a", Value: valuemodel.NewArray(make([]valuemodel.Value, 3))},
		{Key: "b", Value: valuemodel.NewArray(make([]valuemodel.Value, 7))},
	})

	if got := result.FanOutCount(); got != 7 {
		t.Fatalf("expected fan-out 7, got %d", got)
	}

	if got := valuemodel.NewString("scalar").FanOutCount(); got != 0 {
		t.Fatalf("expected scalar fan-out 0, got %d", got)
	}
}

func TestMapInsertionOrderPreserved(t *testing.T) {
	m := valuemodel.NewMap([]valuemodel.KV{
		{Key: "z", Value: valuemodel.NewInt(1)},
		{Key: "a", Value: valuemodel.NewInt(2)},
	})

	if m.Map[0].Key != "z" || m.Map[1].Key != "a" {
		t.Fatalf("expected insertion order preserved, got %+v", m.Map)
	}
}
