package rfc9111

import (
	"net/http"
	"testing"
	"time"
)

func TestExpiresAtMaxAge(t *testing.T) {
	now := time.Now()
	header := http.Header{"Cache-Control": []string{"max-age=120"}}
	if exp := ExpiresAt(now, header); !exp.Equal(now.Add(2 * time.Minute)) {
		t.Fatalf("Expiry is %s", exp)
	}
}

func TestExpiresAtMaxAgeWinsOverExpires(t *testing.T) {
	now := time.Now()
	header := http.Header{
		"Cache-Control": []string{"max-age=10"},
		"Expires":       []string{ToHttpDate(now.Add(time.Hour * 24))},
	}
	if exp := ExpiresAt(now, header); !exp.Equal(now.Add(10 * time.Second)) {
		t.Fatalf("Expiry is %s", exp)
	}
}

func TestExpiresAtExpiresHeader(t *testing.T) {
	now := time.Unix(784111777, 0)
	header := http.Header{
		"expires": []string{ToHttpDate(now.Add(30 * time.Minute))},
	}
	if exp := ExpiresAt(now, header); !exp.Equal(now.Add(30 * time.Minute)) {
		t.Fatalf("Expiry is %s", exp)
	}
}

func TestExpiresAtUnparseableFallsBack(t *testing.T) {
	now := time.Now()
	header := http.Header{"Expires": []string{"0"}}
	if exp := ExpiresAt(now, header); !exp.Equal(now.Add(DefaultFreshnessLifetime)) {
		t.Fatalf("Expiry is %s", exp)
	}
}

func TestExpiresAtDefault(t *testing.T) {
	now := time.Now()
	if exp := ExpiresAt(now, http.Header{}); !exp.Equal(now.Add(time.Hour)) {
		t.Fatalf("Expiry is %s", exp)
	}
}
