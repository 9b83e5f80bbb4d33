// Package pacing decides how fast a dispatch run is allowed to send. A named
// profile yields a base inter-send delay and an optional daily cap; the loop
// adds bounded jitter so sends never fall on a perfectly periodic boundary.
package pacing

import (
	"fmt"
	"log"
	"math/rand"
	"os"
	"sync"
	"time"

	"gopkg.in/yaml.v3"
)

// Profile is a named send speed. DailyCap of zero means uncapped. A
// reached cap pauses the campaign; that is warm-up policy, not an error.
type Profile struct {
	Name     string
	Delay    time.Duration
	DailyCap int
}

// maxRetryWait caps the extended wait used after a throttled send.
const maxRetryWait = 2 * time.Minute

var builtinProfiles = map[string]Profile{
	"fast":      {Name: "fast", Delay: 5 * time.Second},
	"normal":    {Name: "normal", Delay: 15 * time.Second},
	"slow":      {Name: "slow", Delay: 30 * time.Second},
	"very_slow": {Name: "very_slow", Delay: 60 * time.Second},
	"warmup":    {Name: "warmup", Delay: 60 * time.Second, DailyCap: 50},
}

// Controller resolves profile names and computes jittered delays.
type Controller struct {
	mu       sync.RWMutex
	profiles map[string]Profile
	rnd      *rand.Rand
}

func NewController() *Controller {
	profiles := make(map[string]Profile, len(builtinProfiles))
	for name, p := range builtinProfiles {
		profiles[name] = p
	}
	return &Controller{
		profiles: profiles,
		rnd:      rand.New(rand.NewSource(time.Now().UnixNano())),
	}
}

// Profile returns the named profile, falling back to "normal" when the name
// is unknown so a stale campaign row cannot stall dispatch.
func (c *Controller) Profile(name string) Profile {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if p, ok := c.profiles[name]; ok {
		return p
	}
	log.Printf("⚠️ unknown pacing profile %q, falling back to normal", name)
	return c.profiles["normal"]
}

// NextDelay returns the profile's base delay plus 0-10% random jitter.
func (c *Controller) NextDelay(p Profile) time.Duration {
	c.mu.Lock()
	jitter := time.Duration(c.rnd.Int63n(int64(p.Delay)/10 + 1))
	c.mu.Unlock()
	return p.Delay + jitter
}

// RetryWait is the extended wait before retrying a throttled send: twice the
// base delay, capped. Always strictly longer than the pacing delay.
func RetryWait(p Profile) time.Duration {
	wait := 2 * p.Delay
	if wait > maxRetryWait {
		return maxRetryWait
	}
	return wait
}

type profileFile struct {
	Delay    string `yaml:"delay"`
	DailyCap int    `yaml:"daily_cap"`
}

// LoadFile merges profile overrides from a YAML file of the form:
//
//	warmup:
//	  delay: 90s
//	  daily_cap: 25
func (c *Controller) LoadFile(path string) error {
	raw, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read pacing profiles: %w", err)
	}
	var parsed map[string]profileFile
	if err := yaml.Unmarshal(raw, &parsed); err != nil {
		return fmt.Errorf("parse pacing profiles: %w", err)
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	for name, pf := range parsed {
		delay, err := time.ParseDuration(pf.Delay)
		if err != nil {
			return fmt.Errorf("profile %q: bad delay %q: %w", name, pf.Delay, err)
		}
		if delay <= 0 {
			return fmt.Errorf("profile %q: delay must be positive", name)
		}
		c.profiles[name] = Profile{Name: name, Delay: delay, DailyCap: pf.DailyCap}
	}
	return nil
}
