package token

import (
	"bytes"
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

func TestIssueAndVerify(t *testing.T) {
	a := NewAuthority(DefaultTimeout)
	defer a.Close()

	tok, err := a.Issue("nonce-1", "dump-heap")
	if err != nil {
		t.Fatalf("Issue failed: %v", err)
	}
	if len(tok) != tokenLength {
		t.Fatalf("Expected %d byte token, got %d", tokenLength, len(tok))
	}

	t.Run("WrongInputsKeepToken", func(t *testing.T) {
		forged := bytes.Clone(tok)
		forged[0] ^= 0xff
		cases := []struct {
			name   string
			nonce  string
			action string
			token  []byte
		}{
			{"forged token", "nonce-1", "dump-heap", forged},
			{"other action", "nonce-1", "kill-vm", tok},
			{"other nonce", "nonce-2", "dump-heap", tok},
			{"nil token", "nonce-1", "dump-heap", nil},
		}
		for _, tc := range cases {
			if a.Verify(tc.nonce, tc.action, tc.token) {
				t.Errorf("%s: verification must fail", tc.name)
			}
		}
	})

	t.Run("SingleUse", func(t *testing.T) {
		if !a.Verify("nonce-1", "dump-heap", tok) {
			t.Fatalf("First verification must succeed")
		}
		if a.Verify("nonce-1", "dump-heap", tok) {
			t.Errorf("Second verification must fail")
		}
	})
}

func TestReissueReplacesToken(t *testing.T) {
	a := NewAuthority(DefaultTimeout)
	defer a.Close()

	first, _ := a.Issue("n", "act")
	second, _ := a.Issue("n", "act")

	if a.Verify("n", "act", first) {
		t.Errorf("Replaced token must not verify")
	}
	if !a.Verify("n", "act", second) {
		t.Errorf("Current token must verify")
	}
}

func TestTokenExpires(t *testing.T) {
	a := NewAuthority(30 * time.Millisecond)
	defer a.Close()

	tok, _ := a.Issue("n", "act")
	time.Sleep(100 * time.Millisecond)
	if a.Verify("n", "act", tok) {
		t.Errorf("Expired token must not verify")
	}
}

func TestExpiryOfReplacedTokenKeepsNewOne(t *testing.T) {
	a := NewAuthority(60 * time.Millisecond)
	defer a.Close()

	a.Issue("n", "act")
	time.Sleep(40 * time.Millisecond)
	second, _ := a.Issue("n", "act")
	// the first token's timer would have fired by now
	time.Sleep(40 * time.Millisecond)
	if !a.Verify("n", "act", second) {
		t.Errorf("Replacement must live for its own timeout")
	}
}

func TestConcurrentVerifySucceedsOnce(t *testing.T) {
	for trial := 0; trial < 20; trial++ {
		a := NewAuthority(DefaultTimeout)
		tok, _ := a.Issue("n", "act")

		var wins atomic.Int32
		var wg sync.WaitGroup
		start := make(chan struct{})
		for i := 0; i < 8; i++ {
			wg.Add(1)
			go func() {
				defer wg.Done()
				<-start
				if a.Verify("n", "act", tok) {
					wins.Add(1)
				}
			}()
		}
		close(start)
		wg.Wait()
		a.Close()

		if wins.Load() != 1 {
			t.Fatalf("Trial %d: expected exactly one successful verification, got %d", trial, wins.Load())
		}
	}
}

func TestRecordKey(t *testing.T) {
	if recordKey("ab", "c") != recordKey("ab", "c") {
		t.Errorf("Record key must be deterministic")
	}
	if recordKey("ab", "c") == recordKey("ab", "d") {
		t.Errorf("Different actions must yield different keys")
	}
	if recordKey("nonce-x", "ping") == recordKey("nonce-", "xping") {
		t.Errorf("Shifting bytes between nonce and action must change the key")
	}
	if len(recordKey("n", "a")) != 64 {
		t.Errorf("Expected hex encoded SHA-256")
	}
}

func TestTokenBoundToExactPair(t *testing.T) {
	a := NewAuthority(DefaultTimeout)
	defer a.Close()

	tok, err := a.Issue("nonce-x", "ping")
	if err != nil {
		t.Fatalf("Issue failed: %v", err)
	}
	if a.Verify("nonce-", "xping", tok) {
		t.Fatalf("Token verified for a different nonce and action split")
	}
	if !a.Verify("nonce-x", "ping", tok) {
		t.Fatalf("Token must still verify for the pair it was issued for")
	}
}
