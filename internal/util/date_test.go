package util

import (
	"testing"
	"time"
)

func TestParseDate(t *testing.T) {
	cases := []struct {
		name  string
		input string
		want  time.Time
	}{
		{name: "year only", input: "2021", want: time.Date(2021, 1, 1, 0, 0, 0, 0, time.UTC)},
		{name: "iso", input: "2022-03-15", want: time.Date(2022, 3, 15, 0, 0, 0, 0, time.UTC)},
		{name: "day first", input: "15/03/2022", want: time.Date(2022, 3, 15, 0, 0, 0, 0, time.UTC)},
		{name: "month year", input: "Mar 2020", want: time.Date(2020, 3, 1, 0, 0, 0, 0, time.UTC)},
		{name: "pubmed style", input: "2019 Nov 4", want: time.Date(2019, 11, 4, 0, 0, 0, 0, time.UTC)},
		{name: "excel serial", input: "44197", want: time.Date(2021, 1, 1, 0, 0, 0, 0, time.UTC)},
		{name: "excel short date", input: "03-05-21", want: time.Date(2021, 3, 5, 0, 0, 0, 0, time.UTC)},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got, err := ParseDate(tc.input)
			if err != nil {
				t.Fatal(err)
			}
			if got == nil || !got.Equal(tc.want) {
				t.Fatalf("got %v want %v", got, tc.want)
			}
		})
	}
}

func TestParseDateMissingAndInvalid(t *testing.T) {
	got, err := ParseDate("NA")
	if err != nil || got != nil {
		t.Fatalf("got %v err %v", got, err)
	}
	if _, err := ParseDate("sometime last spring"); err == nil {
		t.Fatal("expected error")
	}
}
