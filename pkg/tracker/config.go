package tracker

import (
	"net/url"
	"strings"

	"github.com/landingbeacon/landingbeacon-go/internal/platform/errors"
)

// DefaultAPIURL is the production collection origin.
const DefaultAPIURL = "https://api.landingbeacon.io"

// Config identifies the project a Client reports to. ProjectID and APIKey are
// required; APIKey is sent as a bearer token.
type Config struct {
	ProjectID string `yaml:"project_id"`
	APIKey    string `yaml:"api_key"`
	APIURL    string `yaml:"api_url"`
}

// Validate reports the first missing required field.
func (c Config) Validate() error {
	if strings.TrimSpace(c.ProjectID) == "" {
		return errors.New(errors.KindConfig, "tracker.config", "projectId is required")
	}
	if strings.TrimSpace(c.APIKey) == "" {
		return errors.New(errors.KindConfig, "tracker.config", "apiKey is required")
	}
	return nil
}

func (c Config) withDefaults() Config {
	if strings.TrimSpace(c.APIURL) == "" {
		c.APIURL = DefaultAPIURL
	}
	c.APIURL = strings.TrimRight(strings.TrimSpace(c.APIURL), "/")
	return c
}

func (c Config) emailsURL() string {
	return c.APIURL + "/api/v1/projects/" + url.PathEscape(c.ProjectID) + "/emails"
}

func (c Config) eventsURL() string {
	return c.APIURL + "/api/v1/projects/" + url.PathEscape(c.ProjectID) + "/events"
}
