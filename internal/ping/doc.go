// Package ping implements ICMP echo reachability probes.
//
// By default probes use unprivileged "ping sockets" (udp4), which Linux
// permits for groups listed in net.ipv4.ping_group_range. Privileged mode
// opens a raw ip4:icmp socket and needs CAP_NET_RAW.
//
// A probe that receives no reply before its timeout reports unreachable
// with a nil error. Errors are reserved for local failures such as an
// unresolvable address or a socket that cannot be opened.
package ping
