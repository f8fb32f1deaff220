package scenario

import "github.com/tsn-sim/tsn-sim/sim/flow"

func flowEntry(src, dst, app string) flow.Entry {
	return flow.Entry{Source: src, Destination: dst, Application: app, PacketLength: 64, PacketInterval: 0.001}
}
