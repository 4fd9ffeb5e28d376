package pool

import "fmt"

// RunBackground submits cmd to the auxiliary shell as a detached job:
// "(<cmd>) &". No output is captured, no PID is returned, no status is
// surfaced — it exists because it is a trivial reuse of the auxiliary
// shell already required for the process-tree killer.
func (p *Pool) RunBackground(cmd string) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if err := p.ensureAuxLocked(); err != nil {
		return err
	}
	if !p.aux.Alive() {
		return newError(KindAuxDead, fmt.Errorf("auxiliary shell dead"))
	}
	if err := p.aux.WriteLine(fmt.Sprintf("(%s) &", cmd)); err != nil {
		return newError(KindAuxDead, err)
	}
	p.logf("background launched: %s", cmd)
	return nil
}
