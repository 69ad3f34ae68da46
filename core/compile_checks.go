package core

import glog "github.com/goliatone/go-logger/glog"

var (
	_ CredentialStore  = (*MemoryCredentialStore)(nil)
	_ CorrelationStore = (*MemoryCorrelationStore)(nil)
	_ ReplayLedger     = (*MemoryReplayLedger)(nil)

	_ Logger         = glog.Nop()
	_ LoggerProvider = glog.ProviderFromLogger(glog.Nop())
)
