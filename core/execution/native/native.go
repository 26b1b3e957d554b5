// Package native implements the registry of the contracts run by the engine.
//
// A native contract is written in Go and packaged with the application. Codes
// are registered once and identified by a sequential number, and an instance
// binds an address to a code and to its private store.
package native

import (
	"sort"

	"github.com/shurinov/fadroma/core/execution"
	"github.com/shurinov/fadroma/core/store"
	"golang.org/x/xerrors"
)

var (
	// ErrUnknownCode is returned when a code identifier is not registered.
	ErrUnknownCode = xerrors.New("unknown code")

	// ErrAddressInUse is returned when an instance already exists at an
	// address.
	ErrAddressInUse = xerrors.New("address already in use")

	// ErrUnknownContract is returned when no instance exists at an address.
	ErrUnknownContract = xerrors.New("unknown contract")
)

// Instance is a contract instantiated at an address.
type Instance struct {
	Address  string
	CodeID   uint64
	Contract execution.Contract
	Store    store.Checkpointed
}

// Service is the registry of codes and instances.
type Service struct {
	codes     []execution.Contract
	instances map[string]*Instance
	version   uint64
}

// NewExecution returns a new empty registry.
func NewExecution() *Service {
	return &Service{
		instances: map[string]*Instance{},
	}
}

// Register adds the contract as a new code and returns its identifier. The
// identifiers are sequential, starting at zero.
func (s *Service) Register(contract execution.Contract) uint64 {
	if contract == nil {
		panic(xerrors.New("contract must not be nil"))
	}

	s.codes = append(s.codes, contract)

	return uint64(len(s.codes) - 1)
}

// Code returns the contract registered with the identifier.
func (s *Service) Code(id uint64) (execution.Contract, error) {
	if id >= uint64(len(s.codes)) {
		return nil, xerrors.Errorf("code %d: %w", id, ErrUnknownCode)
	}

	return s.codes[id], nil
}

// Len returns the number of registered codes.
func (s *Service) Len() int {
	return len(s.codes)
}

// Add creates an instance of the code at the address.
func (s *Service) Add(addr string, codeID uint64, st store.Checkpointed) (*Instance, error) {
	contract, err := s.Code(codeID)
	if err != nil {
		return nil, err
	}

	_, found := s.instances[addr]
	if found {
		return nil, xerrors.Errorf("'%s': %w", addr, ErrAddressInUse)
	}

	inst := &Instance{
		Address:  addr,
		CodeID:   codeID,
		Contract: contract,
		Store:    st,
	}

	s.instances[addr] = inst
	s.version++

	return inst, nil
}

// Remove deletes the instance at the address, if any.
func (s *Service) Remove(addr string) {
	_, found := s.instances[addr]
	if !found {
		return
	}

	delete(s.instances, addr)
	s.version++
}

// Version returns a number that changes every time an instance is added or
// removed.
func (s *Service) Version() uint64 {
	return s.version
}

// Has returns true if an instance exists at the address.
func (s *Service) Has(addr string) bool {
	_, found := s.instances[addr]
	return found
}

// Get returns the instance at the address.
func (s *Service) Get(addr string) (*Instance, error) {
	inst, found := s.instances[addr]
	if !found {
		return nil, xerrors.Errorf("'%s': %w", addr, ErrUnknownContract)
	}

	return inst, nil
}

// Instances returns the instances sorted by address.
func (s *Service) Instances() []*Instance {
	res := make([]*Instance, 0, len(s.instances))
	for _, inst := range s.instances {
		res = append(res, inst)
	}

	sort.Slice(res, func(i, j int) bool {
		return res[i].Address < res[j].Address
	})

	return res
}
