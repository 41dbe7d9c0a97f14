package rfc9111

import (
	"testing"
	"time"
)

func TestToDeltaSeconds(t *testing.T) {
	fiveSeconds := 5 * time.Second
	if s := ToDeltaSeconds(fiveSeconds); s != "5" {
		t.Fatalf("Delta seconds is %s", s)
	}
}

func TestDeltaSecondsInvalid(t *testing.T) {
	if _, ok := deltaSeconds("ten"); ok {
		t.Fatal("Non-numeric delta seconds accepted")
	}
	if _, ok := deltaSeconds("-1"); ok {
		t.Fatal("Negative delta seconds accepted")
	}
	if d, ok := deltaSeconds("99999999999"); !ok || d != maxDeltaSeconds*time.Second {
		t.Fatalf("Overflowing delta seconds is %s", d)
	}
}

func TestHttpDateIMF(t *testing.T) {
	date, err := HttpDate("Sun, 06 Nov 1994 08:49:37 GMT")
	if err != nil {
		t.Fatalf("Error parsing date %+v", err)
	}
	if date.Unix() != 784111777 {
		t.Fatalf("Parsed date is %s", date)
	}
}

func TestHttpDateRFC850(t *testing.T) {
	_, err := HttpDate("Thursday, 18-Aug-50 02:01:18 GMT")
	if err != nil {
		t.Fatalf("Error parsing date %+v", err)
	}
}

func TestHttpDateTZCase(t *testing.T) {
	_, err := HttpDate("Thu, 18 Aug 2050 02:01:18 gMT")
	if err != nil {
		t.Fatalf("Error parsing date %+v", err)
	}
}

func TestHttpDateInvalid(t *testing.T) {
	if _, err := HttpDate("0"); err == nil {
		t.Fatal("Invalid date parsed")
	}
}

func TestToHttpDateRoundTrip(t *testing.T) {
	now := time.Unix(784111777, 0)
	date, err := HttpDate(ToHttpDate(now))
	if err != nil || !date.Equal(now) {
		t.Fatalf("Date %s, err %v", date, err)
	}
}
