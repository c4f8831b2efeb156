package routes

import (
	"fmt"
	"net/http"
	"os"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"
)

/* Loader manages rate-limit policies from routes.yaml
 * Provides in-memory lookup for fast access
 */

// Config represents the structure of routes.yaml
type Config struct {
	Routes []RouteConfig `yaml:"routes"`
}

// RouteConfig represents a single policy in the YAML file; method defaults to POST
type RouteConfig struct {
	RouteID       string `yaml:"route_id"`
	Path          string `yaml:"path"`
	Method        string `yaml:"method"`
	Limit         int    `yaml:"limit"`
	WindowSeconds int    `yaml:"window_seconds"`
	// ip, user or user_or_ip (default)
	Identify      string `yaml:"identify"`
}

// Loader holds the loaded routes
type Loader struct {
	routes map[string]*Route
}

// NewLoader creates a new route loader
func NewLoader() *Loader {
	return &Loader{
		routes: make(map[string]*Route),
	}
}

// Load reads and parses the routes.yaml file
func (l *Loader) Load(filePath string) error {
	data, err := os.ReadFile(filePath)
	if err != nil {
		return fmt.Errorf("reading routes file: %w", err)
	}
	return l.Parse(data)
}

// Parse loads policies from YAML bytes
func (l *Loader) Parse(data []byte) error {
	var config Config
	if err := yaml.Unmarshal(data, &config); err != nil {
		return fmt.Errorf("parsing routes YAML: %w", err)
	}

	loaded := make(map[string]*Route, len(config.Routes))
	for _, rc := range config.Routes {
		method := strings.ToUpper(strings.TrimSpace(rc.Method))
		if method == "" {
			method = http.MethodPost
		}

		route := &Route{
			RouteID:       rc.RouteID,
			Path:          rc.Path,
			Method:        method,
			Limit:         rc.Limit,
			WindowSeconds: rc.WindowSeconds,
			Identify:      NewIdentify(rc.Identify),
		}

		if err := route.Validate(); err != nil {
			return fmt.Errorf("validating route: %w", err)
		}
		if _, dup := loaded[route.RouteID]; dup {
			return fmt.Errorf("validating route: duplicate route_id %s", route.RouteID)
		}
		for _, other := range loaded {
			if other.Method == route.Method && other.Path == route.Path {
				return fmt.Errorf("validating route: %s and %s both protect %s %s", other.RouteID, route.RouteID, route.Method, route.Path)
			}
		}

		loaded[route.RouteID] = route
	}

	l.routes = loaded
	return nil
}

// Get retrieves a route by its ID
func (l *Loader) Get(routeID string) (*Route, error) {
	route, exists := l.routes[routeID]
	if !exists {
		return nil, fmt.Errorf("route not found: %s", routeID)
	}
	return route, nil
}

// List returns all loaded routes ordered by ID
func (l *Loader) List() []*Route {
	routes := make([]*Route, 0, len(l.routes))
	for _, route := range l.routes {
		routes = append(routes, route)
	}
	sort.Slice(routes, func(i, j int) bool { return routes[i].RouteID < routes[j].RouteID })
	return routes
}

// Exists checks if a route ID exists
func (l *Loader) Exists(routeID string) bool {
	_, exists := l.routes[routeID]
	return exists
}

// Match finds the policy protecting method and path
func (l *Loader) Match(method, path string) (*Route, bool) {
	for _, route := range l.routes {
		if route.Method == method && route.Path == path {
			return route, true
		}
	}
	return nil, false
}
