package model

import "strings"

const (
	ProtocolTCP = "_tcp"
	ProtocolUDP = "_udp"

	// Meta query used to enumerate registration types.
	ServicesMetaQuery = "_services._dns-sd._udp"
	DefaultDomain     = "local"
)

// SplitRegType splits a registration type at its first label.
// "_tcp.local" gives ("_tcp", "local"), "_http._tcp" gives ("_http", "_tcp").
func SplitRegType(regType string) (head string, rest string) {
	regType = strings.TrimSuffix(regType, ".")
	head, rest, _ = strings.Cut(regType, ".")
	return head, rest
}

// NestedKey identifies the nested browse opened for one registration type.
func NestedKey(serviceName string, protocol string) string {
	return serviceName + "." + protocol
}

func IdentityKey(domain string, regType string, serviceName string) string {
	return domain + regType + serviceName
}

func IsTransportProtocol(protocol string, recognized []string) bool {
	for _, p := range recognized {
		if strings.EqualFold(p, protocol) {
			return true
		}
	}
	return false
}

func DefaultProtocols() []string {
	return []string{ProtocolTCP, ProtocolUDP}
}
