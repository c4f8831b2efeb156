package routes

import (
	"fmt"
	"net/http"
	"regexp"
	"strings"
	"time"
)

const maxWindowSeconds = 86400

var routeIDPattern = regexp.MustCompile(`^[a-z0-9][a-z0-9_-]*$`)

// Identify selects what a policy counts requests by
type Identify int

const (
	ByUserOrIP Identify = iota + 1
	ByIP
	ByUser
)

// String returns the string representation of the identify mode
func (i Identify) String() string {
	switch i {
	case ByUserOrIP:
		return "user_or_ip"
	case ByIP:
		return "ip"
	case ByUser:
		return "user"
	default:
		return "unknown"
	}
}

// NewIdentify parses a YAML value; empty means user_or_ip
func NewIdentify(str string) Identify {
	switch strings.ToLower(strings.TrimSpace(str)) {
	case "", "user_or_ip":
		return ByUserOrIP
	case "ip":
		return ByIP
	case "user":
		return ByUser
	default:
		return Identify(0)
	}
}

// Validate checks if the identify mode is valid
func (i Identify) Validate() error {
	if i < ByUserOrIP || i > ByUser {
		return fmt.Errorf("invalid identify mode: %d", i)
	}
	return nil
}

/* Route is a rate-limit policy for one protected endpoint
 * The route_id scopes the limiter key, so two routes never share a window
 */
type Route struct {
	RouteID       string
	Path          string
	Method        string
	Limit         int
	WindowSeconds int
	Identify      Identify
}

// Window returns the policy window as a duration
func (r *Route) Window() time.Duration {
	return time.Duration(r.WindowSeconds) * time.Second
}

// Validate checks if the route configuration is valid
func (r *Route) Validate() error {
	if r.RouteID == "" {
		return fmt.Errorf("route_id cannot be empty")
	}
	if !routeIDPattern.MatchString(r.RouteID) {
		return fmt.Errorf("route_id %q must be lowercase letters, digits, '-' or '_'", r.RouteID)
	}
	if !strings.HasPrefix(r.Path, "/") {
		return fmt.Errorf("path must start with / for route %s", r.RouteID)
	}
	switch r.Method {
	case http.MethodGet, http.MethodPost, http.MethodPut, http.MethodPatch, http.MethodDelete:
	default:
		return fmt.Errorf("unsupported method %q for route %s", r.Method, r.RouteID)
	}
	if r.Limit < 1 {
		return fmt.Errorf("limit must be at least 1 for route %s", r.RouteID)
	}
	if r.WindowSeconds < 1 || r.WindowSeconds > maxWindowSeconds {
		return fmt.Errorf("window_seconds must be between 1 and %d for route %s", maxWindowSeconds, r.RouteID)
	}
	if err := r.Identify.Validate(); err != nil {
		return fmt.Errorf("invalid identify for route %s: %w", r.RouteID, err)
	}
	return nil
}
