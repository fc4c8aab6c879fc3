package spec

import (
	"context"
	"fmt"
	"time"

	"github.com/getkin/kin-openapi/openapi3"
	"github.com/go-kit/log"
	"github.com/go-kit/log/level"
)

// Parser turns document sources into contracts. It holds only immutable
// settings, so one Parser may serve concurrent Parse calls.
type Parser struct {
	settings Settings
}

// NewParser builds a Parser from DefaultSettings and opts.
func NewParser(opts ...Option) *Parser {
	settings := DefaultSettings()
	for _, opt := range opts {
		opt(&settings)
	}
	return &Parser{settings: settings.withDefaults()}
}

// Settings returns a copy of the parser configuration.
func (p *Parser) Settings() Settings { return p.settings }

// Parse loads, validates and extracts source. When useCache is set and
// caching is enabled the Cache collaborator is consulted first and filled
// afterwards.
func (p *Parser) Parse(ctx context.Context, source string, useCache bool) (*Contract, error) {
	cached := useCache && p.settings.CacheEnabled
	key := CacheKey(source)
	if cached {
		if c, ok := p.settings.Cache.Get(key); ok {
			level.Debug(p.settings.Logger).Log("msg", "contract cache hit", "source", source)
			return c, nil
		}
	}

	raw, err := Load(ctx, source, p.settings)
	if err != nil {
		return nil, err
	}
	contract, err := p.ParseDocument(raw, source)
	if err != nil {
		return nil, err
	}
	if cached {
		p.settings.Cache.Put(key, contract, p.settings.CacheTTL)
	}
	return contract, nil
}

// ParseBytes decodes data and builds a contract without touching the cache.
func (p *Parser) ParseBytes(data []byte, location string) (*Contract, error) {
	if int64(len(data)) > p.settings.MaxFileSize {
		return nil, tooLarge(location, int64(len(data)), p.settings.MaxFileSize)
	}
	raw, err := Decode(data, location)
	if err != nil {
		return nil, err
	}
	return p.ParseDocument(raw, location)
}

// ParseDocument validates raw and extracts the contract. Version and
// structural failures are fatal; extraction failures are not.
func (p *Parser) ParseDocument(raw RawDocument, location string) (*Contract, error) {
	if err := ValidateVersion(raw, p.settings.SupportedVersions); err != nil {
		setLocation(err, location)
		return nil, err
	}
	if err := ValidateStructure(raw); err != nil {
		setLocation(err, location)
		return nil, err
	}
	c := Extract(raw, p.settings.Logger)
	c.Source = location
	return c, nil
}

func setLocation(err error, location string) {
	if se, ok := err.(*SpecError); ok && se.Location == "" {
		se.Location = location
	}
}

// contractBuilder threads extraction state through the sections of one
// Extract call.
type contractBuilder struct {
	raw      RawDocument
	typed    *openapi3.T
	typedErr error
	logger   log.Logger
	contract *Contract
}

// Extract builds a best-effort contract from an already validated document.
// Each section is isolated: a failure leaves that section empty and is
// recorded in Contract.Diagnostics.
func Extract(raw RawDocument, logger log.Logger) *Contract {
	if logger == nil {
		logger = log.NewNopLogger()
	}
	b := &contractBuilder{
		raw:    raw,
		logger: logger,
		contract: &Contract{
			OpenAPI:       rawString(raw, "openapi"),
			ParsedAt:      time.Now().UTC(),
			Endpoints:     map[string]*Endpoint{},
			Schemas:       Registry{},
			ModelMappings: map[string]*ModelMapping{},
			ValidationRules: ValidationRules{
				Schemas:    map[string]RuleSet{},
				Operations: map[string]RuleSet{},
			},
		},
	}
	if paths, ok := raw["paths"].(map[string]any); ok {
		b.contract.Paths = paths
	}
	b.typed, b.typedErr = LoadTyped(raw)
	if b.typedErr != nil {
		level.Debug(logger).Log("msg", "typed load failed, raw extraction will be used", "err", b.typedErr)
	}

	b.step("info", b.info)
	b.step("servers", b.servers)
	b.step("security", b.security)
	b.step("schemas", b.schemas)
	b.step("endpoints", b.endpoints)
	b.step("validation_rules", b.validationRules)
	b.step("model_mappings", b.modelMappings)
	return b.contract
}

func (b *contractBuilder) step(section string, fn func() error) {
	defer func() {
		if r := recover(); r != nil {
			b.warn(section, fmt.Errorf("panic: %v", r))
		}
	}()
	if err := fn(); err != nil {
		b.warn(section, err)
	}
}

func (b *contractBuilder) warn(section string, err error) {
	level.Warn(b.logger).Log("msg", "extraction section failed", "section", section, "err", err)
	b.contract.Diagnostics = append(b.contract.Diagnostics, Diagnostic{
		Code:    ExtractionWarning,
		Section: section,
		Message: err.Error(),
		Err:     err,
	})
}

func (b *contractBuilder) info() error {
	info, ok := b.raw["info"].(map[string]any)
	if !ok {
		return fmt.Errorf("info must be a mapping, got %T", b.raw["info"])
	}
	b.contract.Info = Info{
		Title:       rawString(info, "title"),
		Version:     rawString(info, "version"),
		Description: rawString(info, "description"),
	}
	return nil
}

func (b *contractBuilder) servers() error {
	v, present := b.raw["servers"]
	if !present || v == nil {
		return nil
	}
	list, ok := v.([]any)
	if !ok {
		return fmt.Errorf("servers must be a list, got %T", v)
	}
	servers := make([]Server, 0, len(list))
	for i, entry := range list {
		m, ok := entry.(map[string]any)
		if !ok {
			return fmt.Errorf("servers[%d] must be a mapping, got %T", i, entry)
		}
		servers = append(servers, Server{URL: rawString(m, "url"), Description: rawString(m, "description")})
	}
	b.contract.Servers = servers
	return nil
}

func (b *contractBuilder) security() error {
	if v, present := b.raw["security"]; present && v != nil {
		if _, ok := v.([]any); !ok {
			return fmt.Errorf("security must be a list, got %T", v)
		}
	}
	reqs := rawSecurity(b.raw["security"])
	schemes := securitySchemes(b.typed)
	if schemes == nil {
		schemes = rawSecuritySchemes(b.raw)
	}
	b.contract.Security = reqs
	b.contract.SecuritySchemes = schemes
	return nil
}

func (b *contractBuilder) schemas() error {
	var reg Registry
	var err error
	if b.typed != nil {
		reg, err = ExtractSchemas(b.typed)
	} else {
		reg, err = ExtractSchemasRaw(b.raw)
	}
	if err != nil {
		return err
	}
	b.contract.Schemas = reg
	for _, cycle := range reg.Cycles() {
		err := fmt.Errorf("%w: %v", ErrCircularReference, cycle)
		level.Warn(b.logger).Log("msg", "circular schema reference", "cycle", fmt.Sprint(cycle))
		b.contract.Diagnostics = append(b.contract.Diagnostics, Diagnostic{
			Code:    ExtractionWarning,
			Section: "schemas",
			Message: err.Error(),
			Err:     err,
		})
	}
	return nil
}

func (b *contractBuilder) endpoints() error {
	var eps map[string]*Endpoint
	if b.typed != nil {
		var err error
		eps, err = ExtractEndpoints(b.typed)
		if err != nil {
			level.Debug(b.logger).Log("msg", "structured endpoint extraction failed", "err", err)
		}
	}
	if len(eps) == 0 {
		raw, err := ExtractEndpointsRaw(b.raw)
		if err != nil {
			return err
		}
		if len(raw) > 0 {
			level.Debug(b.logger).Log("msg", "endpoints recovered by raw extraction", "count", len(raw))
		}
		eps = raw
	}
	b.contract.Endpoints = eps
	return nil
}

func (b *contractBuilder) validationRules() error {
	b.contract.ValidationRules = generateValidationRules(b.contract.Schemas, b.contract.Endpoints)
	return nil
}

func (b *contractBuilder) modelMappings() error {
	b.contract.ModelMappings = GenerateModelMappings(b.contract.Endpoints, b.contract.Schemas)
	return nil
}
