package addrutil

import (
	"net"
	"strconv"
)

// Subnet is the single /24 every node of a run is numbered from. Node i
// owns host i+1; the last address is the subnet broadcast.
var Subnet = net.IPNet{IP: net.IPv4(10, 1, 1, 0).To4(), Mask: net.CIDRMask(24, 32)}

// BroadcastNode is the node id that stands for every neighbor.
const BroadcastNode = -1

// NodeAddr returns the IPv4 address of a node, or the subnet broadcast for
// BroadcastNode. Ids outside the /24 yield nil.
func NodeAddr(node int) net.IP {
	if node == BroadcastNode {
		return hostAddr(255)
	}
	if node < 0 || node > 253 {
		return nil
	}
	return hostAddr(byte(node + 1))
}

// NodeOf maps an address back to its node id.
func NodeOf(ip net.IP) (int, bool) {
	v4 := ip.To4()
	if v4 == nil || !Subnet.Contains(v4) {
		return 0, false
	}
	switch host := v4[3]; host {
	case 255:
		return BroadcastNode, true
	case 0:
		return 0, false
	default:
		return int(host) - 1, true
	}
}

// Endpoint renders "addr:port" for a node, or the bare node id when it has
// no address on the subnet.
func Endpoint(node, port int) string {
	ip := NodeAddr(node)
	if ip == nil {
		return strconv.Itoa(node) + ":" + strconv.Itoa(port)
	}
	return net.JoinHostPort(ip.String(), strconv.Itoa(port))
}

func hostAddr(host byte) net.IP {
	ip := make(net.IP, net.IPv4len)
	copy(ip, Subnet.IP.To4())
	ip[3] = host
	return ip
}
