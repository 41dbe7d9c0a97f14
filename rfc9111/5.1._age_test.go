package rfc9111

import (
	"net/http"
	"testing"
	"time"
)

func TestFirstAgeMember(t *testing.T) {
	header := http.Header{"age": []string{"7200, 30"}}
	if age, ok := getAge(header); !ok || age != time.Second*7200 {
		t.Fatalf("Age is %v", age)
	}
}

func TestInvalidAgeIgnored(t *testing.T) {
	header := http.Header{"Age": []string{"-1"}}
	if _, ok := getAge(header); ok {
		t.Fatal("Negative age accepted")
	}
}

func TestCurrentAge(t *testing.T) {
	cachedAt := time.Unix(1000, 0)
	header := http.Header{"Age": []string{"10"}}
	if age := CurrentAge(cachedAt, cachedAt.Add(5*time.Second), header); age != 15*time.Second {
		t.Fatalf("Current age is %v", age)
	}
	SetAge(header, 15*time.Second)
	if header.Get("Age") != "15" {
		t.Fatalf("Age header is %s", header.Get("Age"))
	}
}
