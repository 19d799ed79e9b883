package devcomm

import (
	"context"
	"fmt"
	"sort"

	"github.com/puzpuzpuz/xsync/v3"
)

// Driver describes a registered transport backend.
type Driver struct {
	// New creates a backend for the parsed connection parameters.
	// The backend is returned unopened.
	New func(info ConnInfo) (Backend, error)

	// List enumerates connection strings of resources reachable through this
	// transport, e.g. attached serial ports. It may be nil when the transport
	// cannot enumerate resources.
	List func() ([]string, error)
}

var drivers = xsync.NewMapOf[Kind, Driver]()

// Register makes a transport available to New and ListResources under the given kind.
//
// It is intended to be called from the init function of transport packages, in the
// manner of database/sql drivers. Registering the same kind twice panics.
func Register(kind Kind, driver Driver) {
	if driver.New == nil {
		panic(fmt.Sprintf("devcomm: Register %q with nil New func", kind))
	}
	if _, loaded := drivers.LoadOrStore(kind, driver); loaded {
		panic(fmt.Sprintf("devcomm: backend kind %q registered twice", kind))
	}
}

// Kinds returns the sorted list of registered transport kinds.
func Kinds() []Kind {
	kinds := make([]Kind, 0, drivers.Size())
	drivers.Range(func(kind Kind, _ Driver) bool {
		kinds = append(kinds, kind)
		return true
	})
	sort.Slice(kinds, func(i, j int) bool { return kinds[i] < kinds[j] })

	return kinds
}

// New parses the connection string, picks the matching registered transport, and
// returns an opened backend.
//
// The transport kind is autodetected from the connection string shape; see
// ParseConn. The caller owns the backend and must Close it.
func New(ctx context.Context, conn string) (Backend, error) {
	info, err := ParseConn(conn)
	if err != nil {
		return nil, err
	}

	return NewFromInfo(ctx, info)
}

// NewFromInfo returns an opened backend for already-parsed connection parameters.
func NewFromInfo(ctx context.Context, info ConnInfo) (Backend, error) {
	driver, ok := drivers.Load(info.Kind)
	if !ok {
		return nil, fmt.Errorf("%w: %q (is the transport package imported?)", ErrUnknownBackend, info.Kind)
	}

	backend, err := driver.New(info)
	if err != nil {
		return nil, err
	}

	if err := backend.Open(ctx); err != nil {
		return nil, err
	}

	return backend, nil
}

// ListResources enumerates reachable resources for the given transport kind, or for
// all registered transports when kind is empty.
//
// Transports that cannot enumerate resources are omitted from the result.
func ListResources(kind Kind) (map[Kind][]string, error) {
	res := make(map[Kind][]string)

	if kind != "" {
		driver, ok := drivers.Load(kind)
		if !ok {
			return nil, fmt.Errorf("%w: %q", ErrUnknownBackend, kind)
		}
		if driver.List == nil {
			return res, nil
		}
		list, err := driver.List()
		if err != nil {
			return nil, err
		}
		res[kind] = list

		return res, nil
	}

	var listErr error
	drivers.Range(func(k Kind, driver Driver) bool {
		if driver.List == nil {
			return true
		}
		list, err := driver.List()
		if err != nil {
			listErr = fmt.Errorf("list %q resources: %w", k, err)
			return false
		}
		res[k] = list

		return true
	})

	return res, listErr
}
