//go:build windows

package windows

import (
	"golang.org/x/sys/windows/svc"
)

// serviceHandler reports Running until the SCM asks the service to stop,
// then calls stop and reports StopPending while the caller shuts down.
type serviceHandler struct {
	stop func()
}

func (h *serviceHandler) Execute(args []string, requests <-chan svc.ChangeRequest, status chan<- svc.Status) (bool, uint32) {
	status <- svc.Status{State: svc.StartPending}
	status <- svc.Status{State: svc.Running, Accepts: svc.AcceptStop | svc.AcceptShutdown}

	for req := range requests {
		switch req.Cmd {
		case svc.Interrogate:
			status <- req.CurrentStatus
		case svc.Stop, svc.Shutdown:
			status <- svc.Status{State: svc.StopPending}
			h.stop()
			return false, 0
		}
	}
	return false, 0
}

// RunAsService blocks in the service control loop. stop is called once when
// the service is asked to stop.
func RunAsService(name string, stop func()) error {
	return svc.Run(name, &serviceHandler{stop: stop})
}

func IsWindowsService() bool {
	ok, _ := svc.IsWindowsService()
	return ok
}
