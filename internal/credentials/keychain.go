package credentials

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os/exec"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

const (
	DefaultKeychainService = "connectly-credentials"
	DefaultKeychainAccount = "connectly-client"
)

// keychainItemNotFound is the exit status `security` uses for a missing item.
const keychainItemNotFound = 44

// CommandRunner runs an external command and returns its stdout. A failing
// command's error should expose ExitCode() the way *exec.ExitError does.
type CommandRunner func(ctx context.Context, name string, args ...string) ([]byte, error)

// itemNotFound reports whether err is `security` exiting with status 44.
func itemNotFound(err error) bool {
	var exit interface{ ExitCode() int }
	return errors.As(err, &exit) && exit.ExitCode() == keychainItemNotFound
}

func execRunner(ctx context.Context, name string, args ...string) ([]byte, error) {
	return exec.CommandContext(ctx, name, args...).Output()
}

// KeychainStore keeps credentials in the macOS login keychain through the
// `security` tool.
type KeychainStore struct {
	service string
	account string
	run     CommandRunner

	mu     sync.Mutex
	logger *zerolog.Logger
}

// NewKeychainStore creates a keychain store. A nil runner uses os/exec.
func NewKeychainStore(service, account string, run CommandRunner, logger *zerolog.Logger) *KeychainStore {
	if service == "" {
		service = DefaultKeychainService
	}
	if account == "" {
		account = DefaultKeychainAccount
	}
	if run == nil {
		run = execRunner
	}
	return &KeychainStore{service: service, account: account, run: run, logger: logger}
}

func (k *KeychainStore) Read(ctx context.Context) (Pair, bool) {
	k.mu.Lock()
	defer k.mu.Unlock()

	r, err := k.load(ctx)
	if err != nil {
		k.logReadError(err)
		return Pair{}, false
	}
	return r.pair()
}

func (k *KeychainStore) Write(ctx context.Context, p Pair) error {
	k.mu.Lock()
	defer k.mu.Unlock()
	return k.save(ctx, newRecord(p))
}

func (k *KeychainStore) Update(ctx context.Context, fn func(Pair) Pair) error {
	k.mu.Lock()
	defer k.mu.Unlock()

	r, err := k.load(ctx)
	switch {
	case errors.Is(err, errCorruptRecord):
		k.logReadError(err)
		r = record{}
	case err != nil:
		return err
	}
	cur, _ := r.pair()
	return k.save(ctx, newRecord(fn(cur)))
}

func (k *KeychainStore) Clear(ctx context.Context) error {
	k.mu.Lock()
	defer k.mu.Unlock()

	_, err := k.run(ctx, "security", "delete-generic-password", "-s", k.service, "-a", k.account)
	if err != nil && !itemNotFound(err) {
		return fmt.Errorf("failed to delete keychain item: %w", err)
	}
	return nil
}

func (k *KeychainStore) Expiry(ctx context.Context) (time.Time, bool) {
	k.mu.Lock()
	defer k.mu.Unlock()

	r, err := k.load(ctx)
	if err != nil {
		k.logReadError(err)
		return time.Time{}, false
	}
	return r.expiry()
}

// load returns the zero record when the item does not exist.
func (k *KeychainStore) load(ctx context.Context) (record, error) {
	output, err := k.run(ctx, "security", "find-generic-password", "-s", k.service, "-a", k.account, "-w")
	if itemNotFound(err) {
		return record{}, nil
	}
	if err != nil {
		return record{}, fmt.Errorf("failed to read keychain item: %w", err)
	}
	output = []byte(strings.TrimSpace(string(output)))
	if len(output) == 0 {
		return record{}, nil
	}
	return decodeRecord(output)
}

func (k *KeychainStore) save(ctx context.Context, r record) error {
	data, err := json.Marshal(r)
	if err != nil {
		return fmt.Errorf("failed to marshal credentials: %w", err)
	}

	if _, err := k.run(ctx, "security", "add-generic-password", "-U", "-s", k.service, "-a", k.account, "-w", string(data)); err != nil {
		return fmt.Errorf("failed to update keychain: %w", err)
	}
	return nil
}

func (k *KeychainStore) logReadError(err error) {
	if k.logger != nil {
		k.logger.Warn().Err(err).Str("service", k.service).Msg("Ignoring unreadable keychain credentials")
	}
}
