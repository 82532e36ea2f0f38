package gate

import "testing"

func TestDecideTable(t *testing.T) {
	segments := []string{"", "auth", "tabs", "modals", "authx"}
	for _, loading := range []bool{true, false} {
		for _, present := range []bool{true, false} {
			for _, seg := range segments {
				got := Decide(present, loading, seg)
				want := None
				switch {
				case loading:
				case !present && seg != "auth":
					want = ToLogin
				case present && seg == "auth":
					want = ToHome
				}
				if got != want {
					t.Fatalf("Decide(present=%v, loading=%v, %q)=%v, want %v", present, loading, seg, got, want)
				}
			}
		}
	}
}

func TestDecisionString(t *testing.T) {
	if None.String() != "none" || ToLogin.String() != "to_login" || ToHome.String() != "to_home" {
		t.Fatal("unexpected decision names")
	}
}
