package credentials

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// exitStatus stands in for *exec.ExitError.
type exitStatus int

func (e exitStatus) Error() string { return fmt.Sprintf("exit status %d", int(e)) }
func (e exitStatus) ExitCode() int { return int(e) }

// fakeSecurity mimics the subset of `security` used by KeychainStore.
type fakeSecurity struct {
	mu    sync.Mutex
	items map[string]string
	calls []string

	// fail makes the next call to the named subcommand fail with the error.
	fail map[string]error
}

func newFakeSecurity() *fakeSecurity {
	return &fakeSecurity{items: map[string]string{}, fail: map[string]error{}}
}

func (f *fakeSecurity) run(ctx context.Context, name string, args ...string) ([]byte, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if name != "security" || len(args) == 0 {
		return nil, errors.New("unexpected command")
	}
	f.calls = append(f.calls, args[0])
	if err, ok := f.fail[args[0]]; ok {
		delete(f.fail, args[0])
		return nil, err
	}

	var service, account, password string
	for i := 1; i < len(args)-1; i++ {
		switch args[i] {
		case "-s":
			service = args[i+1]
		case "-a":
			account = args[i+1]
		case "-w":
			password = args[i+1]
		}
	}
	key := service + "/" + account

	switch args[0] {
	case "find-generic-password":
		v, ok := f.items[key]
		if !ok {
			return nil, exitStatus(44)
		}
		return []byte(v + "\n"), nil
	case "add-generic-password":
		f.items[key] = password
		return nil, nil
	case "delete-generic-password":
		if _, ok := f.items[key]; !ok {
			return nil, exitStatus(44)
		}
		delete(f.items, key)
		return nil, nil
	}
	return nil, errors.New("unexpected subcommand")
}

func TestKeychainStore(t *testing.T) {
	runStoreContract(t, func(t *testing.T) Store {
		return NewKeychainStore("", "", newFakeSecurity().run, nil)
	})
}

func TestKeychainStoreDefaults(t *testing.T) {
	s := NewKeychainStore("", "", nil, nil)
	assert.Equal(t, DefaultKeychainService, s.service)
	assert.Equal(t, DefaultKeychainAccount, s.account)
	assert.NotNil(t, s.run)
}

func TestKeychainStoreUsesServiceAndAccount(t *testing.T) {
	fake := newFakeSecurity()
	s := NewKeychainStore("svc", "acct", fake.run, nil)

	require.NoError(t, s.Write(context.Background(), Pair{Access: "a", Refresh: "r"}))
	assert.Contains(t, fake.items, "svc/acct")
	assert.Equal(t, []string{"add-generic-password"}, fake.calls)
}

func TestKeychainStoreClearReportsDeleteFailure(t *testing.T) {
	ctx := context.Background()
	fake := newFakeSecurity()
	s := NewKeychainStore("", "", fake.run, nil)
	require.NoError(t, s.Write(ctx, Pair{Access: "a", Refresh: "r"}))

	fake.fail["delete-generic-password"] = exitStatus(51)
	err := s.Clear(ctx)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "exit status 51")

	p, ok := s.Read(ctx)
	require.True(t, ok)
	assert.Equal(t, Pair{Access: "a", Refresh: "r"}, p)
}

func TestKeychainStoreClearMissingItem(t *testing.T) {
	s := NewKeychainStore("", "", newFakeSecurity().run, nil)
	require.NoError(t, s.Clear(context.Background()))
}

func TestKeychainStoreUpdateAbortsOnReadFailure(t *testing.T) {
	ctx := context.Background()
	fake := newFakeSecurity()
	s := NewKeychainStore("", "", fake.run, nil)
	require.NoError(t, s.Write(ctx, Pair{Access: "old", Refresh: "r"}))

	fake.fail["find-generic-password"] = exitStatus(36)
	called := false
	err := s.Update(ctx, func(p Pair) Pair {
		called = true
		p.Access = "new"
		return p
	})
	require.Error(t, err)
	assert.False(t, called)

	p, ok := s.Read(ctx)
	require.True(t, ok)
	assert.Equal(t, Pair{Access: "old", Refresh: "r"}, p, "refresh token survives a failed read")
}

func TestKeychainStoreUpdateReplacesCorruptItem(t *testing.T) {
	ctx := context.Background()
	fake := newFakeSecurity()
	fake.items[DefaultKeychainService+"/"+DefaultKeychainAccount] = "{not json"
	s := NewKeychainStore("", "", fake.run, nil)

	require.NoError(t, s.Update(ctx, func(p Pair) Pair {
		return Pair{Access: "a", Refresh: "r"}
	}))
	assert.Equal(t, "r", RefreshToken(ctx, s))
}
