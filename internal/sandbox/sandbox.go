// Package sandbox is the Validator Sandbox (spec §4.6): it runs
// conversion-produced JS validator modules in an isolated, time-bounded goja
// VM, one fresh VM per invocation, with no bindings for I/O or network.
package sandbox

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/dop251/goja"

	"ludoforge/internal/roomkind"
	"ludoforge/internal/validatorspec"
)

// artifact is a content-addressed, immutable validator module. Deploying a
// room never mutates an existing artifact; a new source produces a new hash.
type artifact struct {
	source  string
	program *goja.Program
}

// Sandbox holds deployed artifacts and the room->artifact bindings. Safe for
// concurrent use.
type Sandbox struct {
	mu        sync.RWMutex
	artifacts map[string]*artifact // content hash -> artifact
	deployed  map[string]string    // room id -> content hash
	deadline  time.Duration
}

// New constructs a Sandbox with the given per-invocation wall-clock deadline
// (spec §4.6 nominal value: a few hundred milliseconds).
func New(deadline time.Duration) *Sandbox {
	return &Sandbox{
		artifacts: make(map[string]*artifact),
		deployed:  make(map[string]string),
		deadline:  deadline,
	}
}

// Deploy compiles source once and binds it to roomID, returning the content
// hash. Compiling twice for the same source is cheap reuse, not a correctness
// requirement: two rooms converted from the same document share one
// artifact.
func (s *Sandbox) Deploy(roomID, source string) (string, error) {
	sum := sha256.Sum256([]byte(source))
	hash := hex.EncodeToString(sum[:])

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.artifacts[hash]; !ok {
		program, err := goja.Compile(hash, source, false)
		if err != nil {
			return "", fmt.Errorf("%w: %v", roomkind.ErrValidatorDeployFailed, err)
		}
		s.artifacts[hash] = &artifact{source: source, program: program}
	}
	s.deployed[roomID] = hash
	return hash, nil
}

// Undeploy removes a room's binding without touching the artifact, which may
// still be shared by other rooms.
func (s *Sandbox) Undeploy(roomID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.deployed, roomID)
}

// Invoke runs the deployed validator for roomID against in, on a fresh VM,
// enforcing the sandbox's wall-clock deadline via goja's interrupt mechanism.
func (s *Sandbox) Invoke(roomID string, in validatorspec.Input) (validatorspec.Output, error) {
	s.mu.RLock()
	hash, ok := s.deployed[roomID]
	var art *artifact
	if ok {
		art = s.artifacts[hash]
	}
	s.mu.RUnlock()

	if !ok || art == nil {
		return validatorspec.Output{}, roomkind.ErrValidatorUnavailable
	}

	vm := goja.New()

	timer := time.AfterFunc(s.deadline, func() {
		vm.Interrupt("deadline exceeded")
	})
	defer timer.Stop()

	if _, err := vm.RunProgram(art.program); err != nil {
		if isInterrupt(err) {
			return validatorspec.Output{}, roomkind.ErrValidatorTimeout
		}
		return validatorspec.Output{}, fmt.Errorf("%w: %v", roomkind.ErrValidatorUnavailable, err)
	}

	fnValue := vm.Get(validatorspec.EntryPoint)
	fn, ok := goja.AssertFunction(fnValue)
	if !ok {
		return validatorspec.Output{}, fmt.Errorf("%w: artifact does not export %q", roomkind.ErrValidatorUnavailable, validatorspec.EntryPoint)
	}

	inputValue, err := toJSValue(vm, in)
	if err != nil {
		return validatorspec.Output{}, fmt.Errorf("%w: %v", roomkind.ErrValidatorUnavailable, err)
	}

	result, err := fn(goja.Undefined(), inputValue)
	if err != nil {
		if isInterrupt(err) {
			return validatorspec.Output{}, roomkind.ErrValidatorTimeout
		}
		return validatorspec.Output{}, fmt.Errorf("%w: %v", roomkind.ErrValidatorLimit, err)
	}

	return fromJSValue(result)
}

func isInterrupt(err error) bool {
	_, ok := err.(*goja.InterruptedError)
	return ok
}

// toJSValue round-trips a Go Input through JSON so the VM only ever sees
// plain data, never a Go value with methods or unexported fields.
func toJSValue(vm *goja.Runtime, in validatorspec.Input) (goja.Value, error) {
	raw, err := json.Marshal(in)
	if err != nil {
		return nil, err
	}
	var generic interface{}
	if err := json.Unmarshal(raw, &generic); err != nil {
		return nil, err
	}
	return vm.ToValue(generic), nil
}

func fromJSValue(v goja.Value) (validatorspec.Output, error) {
	raw, err := json.Marshal(v.Export())
	if err != nil {
		return validatorspec.Output{}, err
	}
	var out validatorspec.Output
	if err := json.Unmarshal(raw, &out); err != nil {
		return validatorspec.Output{}, fmt.Errorf("%w: %v", roomkind.ErrValidatorUnavailable, err)
	}
	return out, nil
}
