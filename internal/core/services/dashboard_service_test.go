package services

import (
	"context"
	"testing"
)

func TestAdminDashboardCounts(t *testing.T) {
	f := newAuthFixture(t)
	ctx := context.Background()

	for _, in := range []RegisterInput{
		{Email: "t1@x.com", Password: "Secret123!", FirstName: "Tia", LastName: "One", Role: "TEACHER", Organization: "school"},
		{Email: "s1@x.com", Password: "Secret123!", FirstName: "Sam", LastName: "One", Role: "STUDENT", Organization: "school"},
		{Email: "d1@x.com", Password: "Secret123!", FirstName: "Dan", LastName: "Doc", Role: "DOCTOR", Organization: "hospital"},
		{Email: "u1@x.com", Password: "Secret123!", FirstName: "Uma", LastName: "User"},
	} {
		in := in
		if _, err := f.auth.Register(ctx, &in); err != nil {
			t.Fatalf("register %s: %v", in.Email, err)
		}
	}

	data, err := NewDashboardService(f.store.Users()).GetAdminDashboard(ctx)
	if err != nil {
		t.Fatalf("dashboard: %v", err)
	}

	if data.TotalUsers != 4 {
		t.Fatalf("total users = %d, want 4", data.TotalUsers)
	}
	if data.UsersByRole["TEACHER"] != 1 || data.UsersByRole["USER"] != 1 || data.UsersByRole["ADMIN"] != 0 {
		t.Fatalf("unexpected role counts %v", data.UsersByRole)
	}
	if data.UsersByOrg["school"] != 2 || data.UsersByOrg["hospital"] != 1 {
		t.Fatalf("unexpected organization counts %v", data.UsersByOrg)
	}
	if data.Unaffiliated != 1 {
		t.Fatalf("unaffiliated = %d, want 1", data.Unaffiliated)
	}
}
