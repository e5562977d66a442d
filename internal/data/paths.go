package data

import (
	"fmt"
	"strings"
)

const (
	DevicesRoot = "Devices"
	AlertsRoot  = "Alerts"
	// ReadingsSegment holds per-reading history below a pipe.
	ReadingsSegment = "Readings"
)

// Store layout:
//
//	Devices/{room}/{pipe}/Latest
//	Devices/{room}/{pipe}/Readings/{t_ms}
//	Alerts/{room}/{key}

func RoomPath(room string) string { return DevicesRoot + "/" + room }

func LatestPath(room, pipe string) string {
	return fmt.Sprintf("%s/%s/%s/Latest", DevicesRoot, room, pipe)
}

func ReadingPath(room, pipe string, tMs int64) string {
	return fmt.Sprintf("%s/%s/%s/%s/%d", DevicesRoot, room, pipe, ReadingsSegment, tMs)
}

func AlertsPath(room string) string { return AlertsRoot + "/" + room }

// ValidKey reports whether s can be used as a single path segment.
func ValidKey(s string) bool {
	return s != "" && !strings.ContainsAny(s, "/#+$[].")
}
