package periph

import "github.com/anthropics/purple-iqrf/pkg/dpa"

// Raw carries an arbitrary prebuilt frame through the task plumbing.
type Raw struct {
	Task
}

// NewRaw wraps a raw request frame.
func NewRaw(request *dpa.Message) *Raw {
	r := &Raw{Task: newTask("Raw", request.NADR(), request.PNUM(), request.PCMD())}
	r.hwpid = request.HWPID()
	r.pdata = append([]byte(nil), request.PData()...)
	return r
}

// ParseResponse stores the response without interpretation. Unlike the typed
// tasks a raw task accepts any wire status; the caller inspects it.
func (r *Raw) ParseResponse(m *dpa.Message) error {
	r.response = m
	return nil
}
