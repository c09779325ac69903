package config

import "testing"

func TestDefault(t *testing.T) {
	cfg := Default()

	if cfg.Mailbox.QueueBytes != 256 {
		t.Errorf("Mailbox.QueueBytes = %d, want 256", cfg.Mailbox.QueueBytes)
	}
	if cfg.Link.Channels != 2 {
		t.Errorf("Link.Channels = %d, want 2", cfg.Link.Channels)
	}
	if cfg.Link.Depth != 4 {
		t.Errorf("Link.Depth = %d, want 4", cfg.Link.Depth)
	}
	if cfg.Link.Variant != "flagged" {
		t.Errorf("Link.Variant = %q, want \"flagged\"", cfg.Link.Variant)
	}
	if cfg.Run.Messages != 64 {
		t.Errorf("Run.Messages = %d, want 64", cfg.Run.Messages)
	}

	if errs := cfg.Validate(); len(errs) != 0 {
		t.Fatalf("Default().Validate() = %v, want no errors", errs)
	}
}

func TestValidate(t *testing.T) {
	cases := []struct {
		name   string
		mutate func(*Config)
	}{
		{"negative queue bytes", func(c *Config) { c.Mailbox.QueueBytes = -1 }},
		{"zero channels", func(c *Config) { c.Link.Channels = 0 }},
		{"zero depth", func(c *Config) { c.Link.Depth = 0 }},
		{"bad variant", func(c *Config) { c.Link.Variant = "warp" }},
		{"zero messages", func(c *Config) { c.Run.Messages = 0 }},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			cfg := Default()
			tc.mutate(cfg)
			if errs := cfg.Validate(); len(errs) == 0 {
				t.Fatal("Validate() = no errors, want at least one")
			}
		})
	}
}
