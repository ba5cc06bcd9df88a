package bus

import (
	"context"
	"sync"

	"github.com/thisdougb/telemetryd/internal/errs"
)

// Fake is an in-memory Transport double for tests: values are set
// directly by the test and GetProperty/GetSubtree read them back;
// PushChange delivers a PropertiesChanged to every live subscription
// on the given path.
type Fake struct {
	mu      sync.Mutex
	subtree []SubtreeEntry
	values  map[string]float64
	readErr map[string]error
	subs    map[string][]chan PropertiesChanged
}

// NewFake returns an empty Fake transport.
func NewFake() *Fake {
	return &Fake{
		values:  make(map[string]float64),
		readErr: make(map[string]error),
		subs:    make(map[string][]chan PropertiesChanged),
	}
}

func key(service, path string) string { return service + "\x00" + path }

// SetSubtree sets the discovery result for the next GetSubtree call.
func (f *Fake) SetSubtree(entries []SubtreeEntry) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.subtree = entries
}

// SetValue sets the value GetProperty returns for (service, path).
func (f *Fake) SetValue(service, path string, v float64) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.values[key(service, path)] = v
}

// SetReadError makes the next GetProperty for (service, path) fail.
func (f *Fake) SetReadError(service, path string, err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.readErr[key(service, path)] = err
}

func (f *Fake) GetSubtree(_ context.Context, _ string, _ int, _ []string) ([]SubtreeEntry, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.subtree, nil
}

func (f *Fake) GetProperty(_ context.Context, service, path, _, _ string) (float64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	k := key(service, path)
	if err := f.readErr[k]; err != nil {
		delete(f.readErr, k)
		return 0, err
	}
	v, ok := f.values[k]
	if !ok {
		return 0, errs.New(errs.TransportIO, "bus.Fake.GetProperty", nil)
	}
	return v, nil
}

func (f *Fake) SubscribePropertiesChanged(ctx context.Context, service, path, _ string) (<-chan PropertiesChanged, error) {
	ch := make(chan PropertiesChanged, 8)
	k := key(service, path)

	f.mu.Lock()
	f.subs[k] = append(f.subs[k], ch)
	f.mu.Unlock()

	go func() {
		<-ctx.Done()
		f.mu.Lock()
		defer f.mu.Unlock()
		list := f.subs[k]
		for i, c := range list {
			if c == ch {
				f.subs[k] = append(list[:i], list[i+1:]...)
				break
			}
		}
		close(ch)
	}()

	return ch, nil
}

// PushChange also updates the stored value so a later GetProperty
// agrees with the signal.
func (f *Fake) PushChange(service, path string, v float64) {
	f.mu.Lock()
	f.values[key(service, path)] = v
	chans := append([]chan PropertiesChanged(nil), f.subs[key(service, path)]...)
	f.mu.Unlock()

	for _, ch := range chans {
		ch <- PropertiesChanged{Changed: map[string]float64{"Value": v}}
	}
}
