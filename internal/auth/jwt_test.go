package auth

import (
	"testing"
	"time"
)

func TestIssueAndParse(t *testing.T) {
	token, exp, err := Issue("F1", RoleFaculty, "edtrack", "secret", 15*time.Minute)
	if err != nil {
		t.Fatalf("Issue() error = %v", err)
	}
	if time.Until(exp) <= 0 {
		t.Error("token already expired at issue time")
	}

	claims, err := Parse(token, "secret", "edtrack")
	if err != nil {
		t.Fatalf("Parse() error = %v", err)
	}
	if claims.Subject != "F1" || claims.Role != RoleFaculty {
		t.Errorf("claims = (%q, %q), want (F1, faculty)", claims.Subject, claims.Role)
	}
}

func TestParseRejections(t *testing.T) {
	token, _, err := Issue("U1", RoleStudent, "edtrack", "secret", 15*time.Minute)
	if err != nil {
		t.Fatalf("Issue() error = %v", err)
	}
	expired, _, err := Issue("U1", RoleStudent, "edtrack", "secret", -time.Minute)
	if err != nil {
		t.Fatalf("Issue() error = %v", err)
	}

	tests := []struct {
		name   string
		token  string
		key    string
		issuer string
	}{
		{name: "garbage token", token: "not.a.jwt", key: "secret", issuer: "edtrack"},
		{name: "wrong key", token: token, key: "other", issuer: "edtrack"},
		{name: "issuer mismatch", token: token, key: "secret", issuer: "someone-else"},
		{name: "expired", token: expired, key: "secret", issuer: "edtrack"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := Parse(tt.token, tt.key, tt.issuer); err == nil {
				t.Error("Parse() accepted an invalid token")
			}
		})
	}
}
