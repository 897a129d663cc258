package indicator

import (
	"errors"
	"math"
	"testing"
	"time"

	"intraday-botv1/internal/model"
)

func sample(price float64) model.PriceSample {
	return model.PriceSample{Time: time.Unix(0, 0), Price: price}
}

func TestEngine_RejectsInvalidSamples(t *testing.T) {
	e := NewEngine(Config{FastSpan: 10, SlowSpan: 200})

	bad := []float64{math.NaN(), math.Inf(1), math.Inf(-1), 0, -10.5}
	for _, p := range bad {
		if err := e.Update(sample(p)); !errors.Is(err, ErrInvalidSample) {
			t.Errorf("price %v: err=%v, want ErrInvalidSample", p, err)
		}
	}
	// A finite positive price does not redeem broken OHLC fields.
	badOHLC := []model.PriceSample{
		{Time: time.Unix(0, 0), Price: 80, High: math.NaN(), Low: 79, Close: 80},
		{Time: time.Unix(0, 0), Price: 80, High: math.Inf(1), Low: 79, Close: 80},
		{Time: time.Unix(0, 0), Price: 80, High: 81, Low: -1, Close: 80},
	}
	for _, s := range badOHLC {
		if err := e.Update(s); !errors.Is(err, ErrInvalidSample) {
			t.Errorf("sample %+v: err=%v, want ErrInvalidSample", s, err)
		}
	}

	if e.HistoryLen() != 0 {
		t.Errorf("invalid samples mutated history: len=%d", e.HistoryLen())
	}
	if r := e.EMAs(); r.FastOK || r.SlowOK {
		t.Error("invalid samples seeded an EMA")
	}
}

func TestEngine_EMAsUndefinedBeforeFirstSample(t *testing.T) {
	e := NewEngine(Config{SingleSpan: 200, FastSpan: 10, SlowSpan: 200, Spans: []int{10, 20, 32}})
	r := e.EMAs()
	if r.SingleOK || r.FastOK || r.SlowOK || len(r.Multi) != 0 {
		t.Errorf("EMAs defined before any sample: %+v", r)
	}

	if err := e.Update(sample(80.12)); err != nil {
		t.Fatal(err)
	}
	r = e.EMAs()
	if !r.SingleOK || !r.FastOK || !r.SlowOK {
		t.Fatalf("EMAs undefined after first sample: %+v", r)
	}
	for span, v := range r.Multi {
		if v != 80.12 {
			t.Errorf("multi EMA(%d) seed=%v, want 80.12", span, v)
		}
	}
}

func TestEngine_InitialEMASeedsPairOnly(t *testing.T) {
	e := NewEngine(Config{FastSpan: 10, SlowSpan: 200, Spans: []int{20}, InitialEMA: 80})
	r := e.EMAs()
	if !r.FastOK || !r.SlowOK {
		t.Fatal("configured initial EMA did not seed the fast/slow pair")
	}
	if r.Fast != 80 || r.Slow != 80 {
		t.Errorf("seeded pair=(%v,%v), want (80,80)", r.Fast, r.Slow)
	}
	if len(r.Multi) != 0 {
		t.Error("initial EMA leaked into the multi-span set")
	}
}

func TestEngine_CCIUnavailableUnderFourteen(t *testing.T) {
	e := NewEngine(Config{FastSpan: 10})
	for i := 0; i < 13; i++ {
		if err := e.Update(sample(100 + float64(i))); err != nil {
			t.Fatal(err)
		}
		if _, err := e.CCI(); !errors.Is(err, ErrUnavailable) {
			t.Fatalf("%d samples: CCI err=%v, want ErrUnavailable", i+1, err)
		}
	}
	if err := e.Update(sample(113)); err != nil {
		t.Fatal(err)
	}
	if _, err := e.CCI(); err != nil {
		t.Fatalf("14 samples: CCI err=%v, want defined", err)
	}
}

func TestEngine_UsesTypicalPriceForCCI(t *testing.T) {
	// OHLC samples: typical price (high+low+close)/3 drives CCI, while the
	// raw price drives the EMAs.
	e := NewEngine(Config{FastSpan: 10, ClassicCCI: true})
	for i := 0; i < 14; i++ {
		base := 101 + float64(i)
		s := model.PriceSample{
			Time:  time.Unix(int64(i), 0),
			Price: 999, // deliberately different from the typical price
			High:  base + 1,
			Low:   base - 1,
			Close: base,
		}
		if err := e.Update(s); err != nil {
			t.Fatal(err)
		}
	}
	r, err := e.CCI()
	if err != nil {
		t.Fatal(err)
	}
	// Typical prices are exactly 101..114, same as the hand-computed ramp.
	assertClose(t, "CCI from typical prices", r.Value, 123.81, 0.005)
}

func TestEngine_HistoryBoundedByLargestWindow(t *testing.T) {
	e := NewEngine(Config{FastSpan: 10, SlowSpan: 200})
	for i := 0; i < 1000; i++ {
		if err := e.Update(sample(50 + float64(i%7))); err != nil {
			t.Fatal(err)
		}
	}
	if e.HistoryLen() > 200 {
		t.Errorf("history len=%d exceeds largest window 200", e.HistoryLen())
	}
}
