package webserver

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/citadelhq/citadel/config"
)

func TestCorsDevDefaults(t *testing.T) {
	p := NewCorsPolicy(config.WebConfig{Port: 1820, Production: false})
	assert.True(t, p.OriginAllowed("http://localhost:1820"))
	assert.True(t, p.OriginAllowed("http://127.0.0.1:1820"))
	assert.False(t, p.OriginAllowed("http://localhost:3000"))
}

func TestCorsProductionEmptyDeniesAll(t *testing.T) {
	p := NewCorsPolicy(config.WebConfig{Port: 1820, Production: true})
	assert.False(t, p.OriginAllowed("http://localhost:1820"))
	assert.False(t, p.OriginAllowed("https://admin.example.com"))
	assert.False(t, p.OriginAllowed(""))
}

func TestCorsAllowlist(t *testing.T) {
	p := NewCorsPolicy(config.WebConfig{
		Production:     true,
		AllowedOrigins: "https://a.example.com, https://b.example.com",
	})
	assert.True(t, p.OriginAllowed("https://a.example.com"))
	assert.True(t, p.OriginAllowed("https://b.example.com"))
	assert.False(t, p.OriginAllowed("https://c.example.com"))
}

func TestCorsWildcardIgnoredInProduction(t *testing.T) {
	dev := NewCorsPolicy(config.WebConfig{AllowedOrigins: "*", Production: false})
	assert.True(t, dev.OriginAllowed("https://anything.example.com"))

	prod := NewCorsPolicy(config.WebConfig{AllowedOrigins: "*", Production: true})
	assert.False(t, prod.OriginAllowed("https://anything.example.com"))
}

func TestCorsHeaders(t *testing.T) {
	p := NewCorsPolicy(config.WebConfig{Production: true, AllowedOrigins: "https://a.example.com"})

	h := p.Headers("https://a.example.com")
	assert.Equal(t, "https://a.example.com", h["Access-Control-Allow-Origin"])
	assert.Equal(t, "true", h["Access-Control-Allow-Credentials"])
	assert.Equal(t, "86400", h["Access-Control-Max-Age"])

	h = p.Headers("https://denied.example.com")
	assert.NotContains(t, h, "Access-Control-Allow-Origin")
	assert.Equal(t, "GET, POST, PUT, DELETE, OPTIONS", h["Access-Control-Allow-Methods"])
}
