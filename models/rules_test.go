package models

import "testing"

func TestPredicateEval(t *testing.T) {
	stats := UserStats{MessageCount: 10, TotalPoints: 50}

	cases := []struct {
		pred Predicate
		want bool
	}{
		{Predicate{StatMessageCount, OpGTE, 10}, true},
		{Predicate{StatMessageCount, OpGTE, 11}, false},
		{Predicate{StatMessageCount, OpGT, 9}, true},
		{Predicate{StatMessageCount, OpGT, 10}, false},
		{Predicate{StatMessageCount, OpEQ, 10}, true},
		{Predicate{StatMessageCount, OpEQ, 9}, false},
		{Predicate{StatTotalPoints, OpGTE, 50}, true},
		{Predicate{Statistic("unknown"), OpGTE, 0}, true}, // unknown stats read as 0
		{Predicate{StatMessageCount, Operator("!="), 1}, false},
	}

	for _, tc := range cases {
		if got := tc.pred.Eval(stats); got != tc.want {
			t.Fatalf("Eval(%+v) = %v, want %v", tc.pred, got, tc.want)
		}
	}
}

func TestDisplayName(t *testing.T) {
	cases := []struct {
		user User
		want string
	}{
		{User{FirstName: "Mika", LastName: "Chan"}, "Mika Chan"},
		{User{FirstName: "Mika"}, "Mika"},
		{User{LastName: "Chan"}, "Chan"},
		{User{Username: "mika"}, "mika"},
		{User{UserID: 42}, "user 42"},
	}
	for _, tc := range cases {
		if got := tc.user.DisplayName(); got != tc.want {
			t.Fatalf("DisplayName(%+v) = %q, want %q", tc.user, got, tc.want)
		}
	}
}
