package metrics

import (
	"errors"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestObserveBlock(t *testing.T) {
	before := testutil.ToFloat64(blocksProcessedTotal.WithLabelValues("connected"))
	ObserveBlock("connected")
	ObserveBlock("connected")
	if got := testutil.ToFloat64(blocksProcessedTotal.WithLabelValues("connected")) - before; got != 2 {
		t.Errorf("connected delta = %v, want 2", got)
	}
}

func TestObserveReorg(t *testing.T) {
	before := testutil.ToFloat64(reorgsTotal)
	ObserveReorg(3)
	if got := testutil.ToFloat64(reorgsTotal) - before; got != 1 {
		t.Errorf("reorgs delta = %v, want 1", got)
	}
}

func TestGauges(t *testing.T) {
	SetTip(12, 3.5)
	if got := testutil.ToFloat64(tipHeight); got != 12 {
		t.Errorf("tip height = %v", got)
	}
	if got := testutil.ToFloat64(totalWork); got != 3.5 {
		t.Errorf("total work = %v", got)
	}

	SetMempoolSize(7)
	if got := testutil.ToFloat64(mempoolSize); got != 7 {
		t.Errorf("mempool size = %v", got)
	}

	SetOrphans("block", 4)
	if got := testutil.ToFloat64(orphanCount.WithLabelValues("block")); got != 4 {
		t.Errorf("orphan blocks = %v", got)
	}
}

func TestObserveMempoolAdmission(t *testing.T) {
	before := testutil.ToFloat64(mempoolAdmissionsTotal.WithLabelValues("rejected"))
	ObserveMempoolAdmission(errors.New("nope"))
	if got := testutil.ToFloat64(mempoolAdmissionsTotal.WithLabelValues("rejected")) - before; got != 1 {
		t.Errorf("rejected delta = %v, want 1", got)
	}
}
