// Package pin collects PIN digits for the profile gate. The verifier owns
// no I/O and holds no expected code: verification happens server-side
// during the profile token exchange, the verifier only buffers input and
// signals when a full code is ready.
package pin

import "sync"

// CodeLength is the fixed PIN length.
const CodeLength = 4

// Verifier accumulates digits one at a time, auto-submitting once the code
// is complete. Non-digit input is rejected and input beyond the code length
// is a no-op. An external rejection resets the buffer so the user retypes
// from scratch. There is no attempt counting or lockout.
type Verifier struct {
	mu          sync.Mutex
	digits      []byte
	submitted   bool
	onSubmit    func(code string)
	onIncorrect func()
}

// NewVerifier builds a verifier with the given callbacks. Either callback
// may be nil. Callbacks run on the goroutine delivering the triggering call
// and outside the verifier's lock.
func NewVerifier(onSubmit func(code string), onIncorrect func()) *Verifier {
	return &Verifier{
		digits:      make([]byte, 0, CodeLength),
		onSubmit:    onSubmit,
		onIncorrect: onIncorrect,
	}
}

// Push offers one input character. It reports whether the character was
// accepted. The character completing the code triggers exactly one submit
// callback; anything typed after that is ignored until Reset or Reject.
func (v *Verifier) Push(ch byte) bool {
	v.mu.Lock()
	if ch < '0' || ch > '9' {
		v.mu.Unlock()
		return false
	}
	if len(v.digits) >= CodeLength || v.submitted {
		v.mu.Unlock()
		return false
	}
	v.digits = append(v.digits, ch)
	if len(v.digits) < CodeLength {
		v.mu.Unlock()
		return true
	}
	v.submitted = true
	code := string(v.digits)
	submit := v.onSubmit
	v.mu.Unlock()

	if submit != nil {
		submit(code)
	}
	return true
}

// Reject signals an external verification failure: the buffer is cleared so
// the user starts over, and the incorrect callback fires.
func (v *Verifier) Reject() {
	v.mu.Lock()
	v.digits = v.digits[:0]
	v.submitted = false
	incorrect := v.onIncorrect
	v.mu.Unlock()

	if incorrect != nil {
		incorrect()
	}
}

// Reset clears collected digits without signaling anything.
func (v *Verifier) Reset() {
	v.mu.Lock()
	v.digits = v.digits[:0]
	v.submitted = false
	v.mu.Unlock()
}

// Entered returns how many digits are currently collected.
func (v *Verifier) Entered() int {
	v.mu.Lock()
	defer v.mu.Unlock()
	return len(v.digits)
}
