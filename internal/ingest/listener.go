package ingest

import "github.com/savid/iptv-udp-buffer/pkg/types"

// Listener observes data transfer on a source. It is used for bandwidth and metrics accounting.
type Listener interface {
	OnTransferStart(ep types.Endpoint)
	OnBytesTransferred(n int)
	OnTransferEnd()
}

// NopListener ignores every event. Sources without a listener use it.
type NopListener struct{}

func (NopListener) OnTransferStart(types.Endpoint) {}
func (NopListener) OnBytesTransferred(int)         {}
func (NopListener) OnTransferEnd()                 {}
