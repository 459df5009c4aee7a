package auth

import (
	"context"
	"errors"
	"strings"
	"testing"
)

// mapStore is a minimal in-package UserStore.
type mapStore map[string]User

func (s mapStore) GetUser(_ context.Context, id string) (User, error) {
	if u, ok := s[id]; ok {
		return u, nil
	}
	return nil, nil
}

// mockProvider returns a fixed result and counts calls.
type mockProvider struct {
	subject string
	err     error
	calls   int
}

func (m *mockProvider) Authenticate(ctx context.Context, _ Credentials, store UserStore) (User, error) {
	m.calls++
	if m.err != nil {
		return nil, m.err
	}
	return LookupUser(ctx, store, m.subject)
}

var testStore = mapStore{
	"alice": &RegisteredUser{Username: "alice", Active: true, RoleSet: []Role{{Name: "admin"}}},
	"carol": &RegisteredUser{Username: "carol", Active: false},
}

func TestChain_FirstSuccessStops(t *testing.T) {
	first := &mockProvider{subject: "alice"}
	second := &mockProvider{subject: "alice"}
	chain, err := NewChain(testStore,
		NamedProvider{Name: "first", Provider: first},
		NamedProvider{Name: "second", Provider: second},
	)
	if err != nil {
		t.Fatalf("NewChain: %v", err)
	}

	user, name, err := chain.Authenticate(context.Background(), Credentials{})
	if err != nil {
		t.Fatalf("Authenticate: %v", err)
	}
	if user.SubjectID() != "alice" || name != "first" {
		t.Errorf("got (%q, %q), want (alice, first)", user.SubjectID(), name)
	}
	if second.calls != 0 {
		t.Errorf("second provider called %d times, want 0", second.calls)
	}
}

func TestChain_FailureThenSuccess(t *testing.T) {
	first := &mockProvider{err: ErrInvalidCredentials}
	second := &mockProvider{subject: "alice"}
	chain, _ := NewChain(testStore,
		NamedProvider{Name: "password", Provider: first},
		NamedProvider{Name: "token", Provider: second},
	)

	user, name, err := chain.Authenticate(context.Background(), Credentials{})
	if err != nil {
		t.Fatalf("Authenticate: %v", err)
	}
	if user.SubjectID() != "alice" || name != "token" {
		t.Errorf("got (%q, %q), want (alice, token)", user.SubjectID(), name)
	}
	if first.calls != 1 || second.calls != 1 {
		t.Errorf("calls = (%d, %d), want (1, 1)", first.calls, second.calls)
	}
}

func TestChain_AllFail_ReasonsInOrder(t *testing.T) {
	chain, _ := NewChain(testStore,
		NamedProvider{Name: "password", Provider: &mockProvider{err: ErrInvalidCredentials}},
		NamedProvider{Name: "token", Provider: &mockProvider{err: ErrTokenExpired}},
	)

	_, _, err := chain.Authenticate(context.Background(), Credentials{})

	var failed *AuthenticationFailedError
	if !errors.As(err, &failed) {
		t.Fatalf("err = %T, want *AuthenticationFailedError", err)
	}
	if len(failed.Reasons) != 2 {
		t.Fatalf("len(Reasons) = %d, want 2", len(failed.Reasons))
	}
	if failed.Reasons[0].Provider != "password" || failed.Reasons[1].Provider != "token" {
		t.Errorf("reason order = [%s %s], want [password token]", failed.Reasons[0].Provider, failed.Reasons[1].Provider)
	}
	if !errors.Is(err, ErrTokenExpired) || !errors.Is(err, ErrInvalidCredentials) {
		t.Errorf("aggregate error should wrap every reason: %v", err)
	}

	msg := err.Error()
	for _, want := range []string{
		"password authentication failed: invalid credentials",
		"token authentication failed: token expired",
	} {
		if !strings.Contains(msg, want) {
			t.Errorf("message %q does not contain %q", msg, want)
		}
	}
}

func TestChain_InactiveUserFails(t *testing.T) {
	next := &mockProvider{err: ErrInvalidToken}
	chain, _ := NewChain(testStore,
		NamedProvider{Name: "password", Provider: &mockProvider{subject: "carol"}},
		NamedProvider{Name: "token", Provider: next},
	)

	_, _, err := chain.Authenticate(context.Background(), Credentials{})
	if !errors.Is(err, ErrUserInactive) {
		t.Errorf("err = %v, want ErrUserInactive among reasons", err)
	}
	if next.calls != 1 {
		t.Errorf("next provider calls = %d, want 1", next.calls)
	}
}

func TestChain_NilUserWithoutErrorFails(t *testing.T) {
	p := ProviderFunc(func(context.Context, Credentials, UserStore) (User, error) { return nil, nil })
	chain, _ := NewChain(testStore, NamedProvider{Name: "broken", Provider: p})

	_, _, err := chain.Authenticate(context.Background(), Credentials{})
	if !errors.Is(err, ErrUserNotFound) {
		t.Errorf("err = %v, want ErrUserNotFound", err)
	}
}

func TestNewChain_Empty(t *testing.T) {
	if _, err := NewChain(testStore); !errors.Is(err, ErrNoProvidersConfigured) {
		t.Errorf("err = %v, want ErrNoProvidersConfigured", err)
	}
}

func TestNewChain_DuplicateName(t *testing.T) {
	_, err := NewChain(testStore,
		NamedProvider{Name: "token", Provider: &mockProvider{}},
		NamedProvider{Name: "token", Provider: &mockProvider{}},
	)
	if !errors.Is(err, ErrDuplicateProvider) {
		t.Errorf("err = %v, want ErrDuplicateProvider", err)
	}
}

func TestNewChain_NilProvider(t *testing.T) {
	if _, err := NewChain(testStore, NamedProvider{Name: "nil"}); err == nil {
		t.Error("expected error for nil provider")
	}
}

func TestChain_Names(t *testing.T) {
	chain, _ := NewChain(testStore,
		NamedProvider{Name: "b", Provider: &mockProvider{}},
		NamedProvider{Name: "a", Provider: &mockProvider{}},
	)
	got := chain.Names()
	if len(got) != 2 || got[0] != "b" || got[1] != "a" {
		t.Errorf("Names() = %v, want [b a]", got)
	}
}

func TestLookupUser(t *testing.T) {
	ctx := context.Background()

	if _, err := LookupUser(ctx, nil, "alice"); !errors.Is(err, ErrNoUserStore) {
		t.Errorf("nil store: err = %v, want ErrNoUserStore", err)
	}
	if _, err := LookupUser(ctx, testStore, "nobody"); !errors.Is(err, ErrUserNotFound) {
		t.Errorf("miss: err = %v, want ErrUserNotFound", err)
	}

	backendErr := errors.New("connection refused")
	store := storeFunc(func(context.Context, string) (User, error) { return nil, backendErr })
	if _, err := LookupUser(ctx, store, "alice"); !errors.Is(err, backendErr) {
		t.Errorf("backend: err = %v, want %v", err, backendErr)
	}
}

type storeFunc func(ctx context.Context, id string) (User, error)

func (f storeFunc) GetUser(ctx context.Context, id string) (User, error) { return f(ctx, id) }

func TestRegisteredUser_RolesCopy(t *testing.T) {
	u := &RegisteredUser{Username: "alice", RoleSet: []Role{{Name: "admin"}}}
	roles := u.Roles()
	roles[0].Name = "changed"

	if !u.HasRole("admin") {
		t.Error("mutating Roles() result changed the user")
	}
	if u.HasRole("changed") {
		t.Error("HasRole matched a mutated copy")
	}
}

func TestAnonymousUser(t *testing.T) {
	var u User = AnonymousUser{}
	if !u.IsAnonymous() || !u.IsActive() || u.SubjectID() != AnonymousSubject || len(u.Roles()) != 0 {
		t.Errorf("unexpected anonymous user: %+v", u)
	}
}
