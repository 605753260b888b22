package regtype_descriptions

import (
	"errors"
	"fmt"
	"io"
	"maps"
	"slices"

	"gopkg.in/yaml.v3"
)

// Defaults returns descriptions of widely deployed service types.
func Defaults() map[string]string {
	return map[string]string{
		"_afpovertcp._tcp":      "Apple File Sharing",
		"_airplay._tcp":         "AirPlay",
		"_airport._tcp":         "AirPort Base Station",
		"_daap._tcp":            "Digital Audio Access Protocol",
		"_device-info._tcp":     "Device Info",
		"_googlecast._tcp":      "Google Cast",
		"_hap._tcp":             "HomeKit Accessory Protocol",
		"_http._tcp":            "Web Site",
		"_https._tcp":           "Secure Web Site",
		"_ipp._tcp":             "Internet Printing Protocol",
		"_ipps._tcp":            "Secure Internet Printing Protocol",
		"_mqtt._tcp":            "MQTT Broker",
		"_nfs._tcp":             "Network File System",
		"_pdl-datastream._tcp":  "PDL Data Stream Printer",
		"_printer._tcp":         "Line Printer Daemon",
		"_raop._tcp":            "Remote Audio Output Protocol",
		"_scanner._tcp":         "Scanner",
		"_sftp-ssh._tcp":        "Secure File Transfer",
		"_sleep-proxy._udp":     "Sleep Proxy Server",
		"_smb._tcp":             "Windows File Sharing",
		"_spotify-connect._tcp": "Spotify Connect",
		"_ssh._tcp":             "Secure Shell",
		"_workstation._tcp":     "Workgroup Manager",
	}
}

// Seed puts every description of src into repo in key order.
func Seed(repo Repository, src map[string]string) error {
	for _, regType := range slices.Sorted(maps.Keys(src)) {
		if err := repo.Put(regType, src[regType]); err != nil {
			return fmt.Errorf("putting %s: %w", regType, err)
		}
	}
	return nil
}

// LoadYAML reads a flat "regtype: description" mapping and seeds repo with it.
// Returns the number of loaded descriptions.
func LoadYAML(r io.Reader, repo Repository) (int, error) {
	src := map[string]string{}
	if err := yaml.NewDecoder(r).Decode(&src); err != nil && !errors.Is(err, io.EOF) {
		return 0, fmt.Errorf("decoding yaml: %w", err)
	}

	if err := Seed(repo, src); err != nil {
		return 0, fmt.Errorf("seeding repo: %w", err)
	}

	return len(src), nil
}
