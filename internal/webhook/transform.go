package webhook

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/dop251/goja"
)

// ErrTransformTimeout is returned when a transform script exceeds its
// execution budget.
var ErrTransformTimeout = errors.New("webhook: transform timed out")

const defaultTransformTimeout = 2 * time.Second

// ApplyTransform runs a JavaScript transform over the delivery payload.
// The script must define a function transform(event) returning the value
// to deliver; returning null or undefined drops the delivery. The script
// runs in a fresh interpreter with no host access and is interrupted
// after timeout.
func ApplyTransform(script string, payload []byte, timeout time.Duration) ([]byte, bool, error) {
	if timeout <= 0 {
		timeout = defaultTransformTimeout
	}

	vm := goja.New()

	timer := time.AfterFunc(timeout, func() {
		vm.Interrupt(ErrTransformTimeout)
	})
	defer timer.Stop()

	if _, err := vm.RunString(script); err != nil {
		return nil, false, wrapInterrupt(err)
	}

	fn, ok := goja.AssertFunction(vm.Get("transform"))
	if !ok {
		return nil, false, errors.New("webhook: script does not define transform(event)")
	}

	var event any
	if err := json.Unmarshal(payload, &event); err != nil {
		return nil, false, fmt.Errorf("webhook: parse payload: %w", err)
	}

	res, err := fn(goja.Undefined(), vm.ToValue(event))
	if err != nil {
		return nil, false, wrapInterrupt(err)
	}
	if res == nil || goja.IsUndefined(res) || goja.IsNull(res) {
		return nil, false, nil
	}

	out, err := json.Marshal(res.Export())
	if err != nil {
		return nil, false, fmt.Errorf("webhook: encode transform result: %w", err)
	}
	return out, true, nil
}

func wrapInterrupt(err error) error {
	var ie *goja.InterruptedError
	if errors.As(err, &ie) {
		return ErrTransformTimeout
	}
	return fmt.Errorf("webhook: transform script: %w", err)
}
