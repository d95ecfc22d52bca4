package metrics

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"
)

func gather(t *testing.T, reg *prometheus.Registry, name string) *dto.MetricFamily {
	t.Helper()
	families, err := reg.Gather()
	if err != nil {
		t.Fatalf("failed to gather metrics: %v", err)
	}
	for _, mf := range families {
		if mf.GetName() == name {
			return mf
		}
	}
	t.Fatalf("%s metric not found", name)
	return nil
}

func labelValue(m *dto.Metric, name string) string {
	for _, lp := range m.GetLabel() {
		if lp.GetName() == name {
			return lp.GetValue()
		}
	}
	return ""
}

// TestRecordLogin_CountsByMethodAndOutcome はログイン結果が方式・結果別に集計されることを検証する。
func TestRecordLogin_CountsByMethodAndOutcome(t *testing.T) {
	reg := prometheus.NewRegistry()
	c := NewCollector(reg)

	c.RecordLogin("password", "success")
	c.RecordLogin("password", "success")
	c.RecordLogin("idp", "domain_not_allowed")

	mf := gather(t, reg, "idgate_login_total")
	if len(mf.GetMetric()) != 2 {
		t.Fatalf("expected 2 series, got %d", len(mf.GetMetric()))
	}
	for _, m := range mf.GetMetric() {
		method, outcome := labelValue(m, "method"), labelValue(m, "outcome")
		got := m.GetCounter().GetValue()
		switch {
		case method == "password" && outcome == "success":
			if got != 2 {
				t.Errorf("password/success = %v, want 2", got)
			}
		case method == "idp" && outcome == "domain_not_allowed":
			if got != 1 {
				t.Errorf("idp/domain_not_allowed = %v, want 1", got)
			}
		default:
			t.Errorf("unexpected series %s/%s", method, outcome)
		}
	}
}

func TestRecordTokenRejected(t *testing.T) {
	reg := prometheus.NewRegistry()
	c := NewCollector(reg)

	c.RecordTokenRejected("expired")

	mf := gather(t, reg, "idgate_token_rejected_total")
	m := mf.GetMetric()[0]
	if labelValue(m, "reason") != "expired" || m.GetCounter().GetValue() != 1 {
		t.Errorf("unexpected metric: %v", m)
	}
}

func TestObserveIdPExchange(t *testing.T) {
	reg := prometheus.NewRegistry()
	c := NewCollector(reg)

	c.ObserveIdPExchange(150 * time.Millisecond)
	c.ObserveIdPExchange(2 * time.Second)

	mf := gather(t, reg, "idgate_idp_exchange_seconds")
	h := mf.GetMetric()[0].GetHistogram()
	if h.GetSampleCount() != 2 {
		t.Errorf("sample count = %d, want 2", h.GetSampleCount())
	}
	if h.GetSampleSum() < 2.1 || h.GetSampleSum() > 2.2 {
		t.Errorf("sample sum = %v", h.GetSampleSum())
	}
}

// TestNewCollector_DoubleRegistrationPanics は同じレジストリへの二重登録でpanicすることを検証する。
func TestNewCollector_DoubleRegistrationPanics(t *testing.T) {
	reg := prometheus.NewRegistry()
	NewCollector(reg)

	defer func() {
		if recover() == nil {
			t.Error("expected panic on duplicate registration")
		}
	}()
	NewCollector(reg)
}
