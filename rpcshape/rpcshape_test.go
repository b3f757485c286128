package rpcshape

import (
	"encoding/json"
	"testing"

	"github.com/lace-db/lace/errkind"
)

func TestMethodsListMatchesConstants(t *testing.T) {
	if len(Methods) != 19 {
		t.Fatalf("len(Methods) = %d, want 19", len(Methods))
	}
	seen := map[string]bool{}
	for _, m := range Methods {
		if seen[m] {
			t.Fatalf("duplicate method name %q", m)
		}
		seen[m] = true
	}
	if !seen[MethodQuery] || !seen[MethodStreamCancel] {
		t.Fatal("expected known method names present in Methods")
	}
}

func TestDomainCodeMapsEveryKnownKind(t *testing.T) {
	kinds := []errkind.Kind{
		errkind.ConnectionAuthFailed, errkind.QueryCancelled, errkind.DataRowNotFound,
		errkind.TransactionDeadlock, errkind.ClientResultTooLarge,
	}
	seen := map[int]bool{}
	for _, k := range kinds {
		code := DomainCode(k)
		if code == CodeInternalError {
			t.Fatalf("DomainCode(%v) fell back to CodeInternalError", k)
		}
		if seen[code] {
			t.Fatalf("duplicate domain code %d", code)
		}
		seen[code] = true
	}
}

func TestDomainCodeUnknownKindFallsBackToInternalError(t *testing.T) {
	if got := DomainCode(errkind.Kind("nonexistent")); got != CodeInternalError {
		t.Fatalf("DomainCode(unknown) = %d, want %d", got, CodeInternalError)
	}
}

func TestNewErrorUsesDomainCode(t *testing.T) {
	e := NewError(errkind.QuerySyntax, "bad sql")
	if e.Code != DomainCode(errkind.QuerySyntax) || e.Message != "bad sql" {
		t.Fatalf("unexpected RPCError: %+v", e)
	}
}

func TestRequestResponseJSONRoundtrip(t *testing.T) {
	id := json.RawMessage(`1`)
	req := Request{JSONRPC: ProtocolVersion, Method: MethodPing, ID: &id}
	data, err := json.Marshal(req)
	if err != nil {
		t.Fatalf("Marshal: %v", err)
	}
	var got Request
	if err := json.Unmarshal(data, &got); err != nil {
		t.Fatalf("Unmarshal: %v", err)
	}
	if got.Method != MethodPing || got.JSONRPC != ProtocolVersion {
		t.Fatalf("roundtrip mismatch: %+v", got)
	}
}
