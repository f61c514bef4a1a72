package parser

import (
	"fmt"
	"net/url"
	"os"
	"sort"
	"strings"

	"github.com/getkin/kin-openapi/openapi3"

	"github.com/su1ph3r/isolator/pkg/types"
)

// Body media types the HTTP oracle can encode
const (
	mediaJSON = "application/json"
	mediaForm = "application/x-www-form-urlencoded"
)

// OpenAPIParser parses OpenAPI specifications
type OpenAPIParser struct {
	filePath string
}

// NewOpenAPIParser creates a new OpenAPI parser
func NewOpenAPIParser(filePath string) (*OpenAPIParser, error) {
	if filePath == "" {
		return nil, fmt.Errorf("%w: empty file path", ErrInvalidInput)
	}
	if _, err := os.Stat(filePath); os.IsNotExist(err) {
		return nil, fmt.Errorf("%w: %s", ErrFileNotFound, filePath)
	}
	return &OpenAPIParser{filePath: filePath}, nil
}

// Parse loads the document and returns its operations sorted by path then
// method
func (p *OpenAPIParser) Parse() ([]types.Endpoint, error) {
	loader := openapi3.NewLoader()
	doc, err := loader.LoadFromFile(p.filePath)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrParseFailed, err)
	}
	if doc.Paths == nil {
		return nil, nil
	}

	var endpoints []types.Endpoint

	for path, pathItem := range doc.Paths.Map() {
		operations := map[string]*openapi3.Operation{
			"GET":    pathItem.Get,
			"POST":   pathItem.Post,
			"PUT":    pathItem.Put,
			"PATCH":  pathItem.Patch,
			"DELETE": pathItem.Delete,
		}

		for method, op := range operations {
			if op == nil {
				continue
			}
			endpoints = append(endpoints, p.parseOperation(method, path, op, pathItem.Parameters))
		}
	}

	sort.Slice(endpoints, func(i, j int) bool {
		if endpoints[i].Path != endpoints[j].Path {
			return endpoints[i].Path < endpoints[j].Path
		}
		return endpoints[i].Method < endpoints[j].Method
	})

	return endpoints, nil
}

// parseOperation converts an OpenAPI operation to an Endpoint
func (p *OpenAPIParser) parseOperation(method, path string, op *openapi3.Operation, pathParams openapi3.Parameters) types.Endpoint {
	endpoint := types.Endpoint{
		Method:      method,
		Path:        NormalizePath(path),
		OperationID: op.OperationID,
	}

	// Operation-level parameters override path-level ones of the same name
	seen := make(map[string]int)
	add := func(params openapi3.Parameters) {
		for _, ref := range params {
			if ref == nil || ref.Value == nil {
				continue
			}
			tp := parseParameter(ref.Value)
			key := tp.In + ":" + tp.Name
			if i, ok := seen[key]; ok {
				endpoint.Parameters[i] = tp
				continue
			}
			seen[key] = len(endpoint.Parameters)
			endpoint.Parameters = append(endpoint.Parameters, tp)
		}
	}
	add(pathParams)
	add(op.Parameters)

	if op.RequestBody != nil && op.RequestBody.Value != nil {
		endpoint.BodyType, endpoint.Parameters = parseRequestBody(op.RequestBody.Value, endpoint.Parameters)
	}

	return endpoint
}

// parseParameter converts an OpenAPI parameter
func parseParameter(param *openapi3.Parameter) types.Parameter {
	tp := types.Parameter{
		Name:     param.Name,
		In:       param.In,
		Required: param.Required,
	}

	if param.Schema != nil && param.Schema.Value != nil && param.Schema.Value.Type != nil {
		if t := param.Schema.Value.Type.Slice(); len(t) > 0 {
			tp.Type = t[0]
		}
	}

	return tp
}

// parseRequestBody picks the body media type and appends the top-level
// schema properties as body parameters
func parseRequestBody(body *openapi3.RequestBody, params []types.Parameter) (string, []types.Parameter) {
	contentType := ""
	var media *openapi3.MediaType

	// Prefer the encodings the oracle supports
	for _, ct := range []string{mediaJSON, mediaForm} {
		if m, ok := body.Content[ct]; ok {
			contentType, media = ct, m
			break
		}
	}
	if contentType == "" {
		keys := make([]string, 0, len(body.Content))
		for ct := range body.Content {
			keys = append(keys, ct)
		}
		sort.Strings(keys)
		if len(keys) == 0 {
			return "", params
		}
		contentType, media = keys[0], body.Content[keys[0]]
	}

	if media == nil || media.Schema == nil || media.Schema.Value == nil {
		return contentType, params
	}
	schema := media.Schema.Value

	required := make(map[string]bool)
	for _, r := range schema.Required {
		required[r] = true
	}

	names := make([]string, 0, len(schema.Properties))
	for name := range schema.Properties {
		names = append(names, name)
	}
	sort.Strings(names)

	for _, name := range names {
		prop := schema.Properties[name]
		tp := types.Parameter{Name: name, In: "body", Required: required[name]}
		if prop != nil && prop.Value != nil && prop.Value.Type != nil {
			if t := prop.Value.Type.Slice(); len(t) > 0 {
				tp.Type = t[0]
			}
		}
		params = append(params, tp)
	}

	return contentType, params
}

// FindEndpoint returns the endpoint matching method and the path of rawURL
func FindEndpoint(endpoints []types.Endpoint, method, rawURL string) (*types.Endpoint, error) {
	method = NormalizeMethod(method)

	path := rawURL
	if u, err := url.Parse(rawURL); err == nil && (u.Scheme != "" || u.Host != "") {
		path = u.Path
	}

	// Literal paths win over templated ones
	var templated *types.Endpoint
	for i := range endpoints {
		ep := &endpoints[i]
		if ep.Method != method {
			continue
		}
		if ep.Path == NormalizePath(path) {
			return ep, nil
		}
		if templated == nil && MatchPath(ep.Path, path) {
			templated = ep
		}
	}
	if templated != nil {
		return templated, nil
	}

	// Servers may carry a base path the document omits from its paths
	for i := range endpoints {
		ep := &endpoints[i]
		if ep.Method == method && ep.Path != "/" && strings.HasSuffix(NormalizePath(path), ep.Path) {
			return ep, nil
		}
	}

	return nil, fmt.Errorf("%w: %s %s", ErrEndpointNotFound, method, path)
}

// ResolveLocation maps an OpenAPI parameter to the location the HTTP oracle
// places the payload in: query, header, form or json
func ResolveLocation(endpoint *types.Endpoint, parameter string) (string, error) {
	param, ok := endpoint.Find(parameter)
	if !ok {
		return "", fmt.Errorf("%w: %s on %s %s", ErrParameterNotFound, parameter, endpoint.Method, endpoint.Path)
	}

	switch param.In {
	case "query":
		return types.LocationQuery, nil
	case "header":
		return types.LocationHeader, nil
	case "body", "formData":
		if strings.Contains(endpoint.BodyType, "json") {
			return types.LocationJSON, nil
		}
		if endpoint.BodyType == "" || endpoint.BodyType == mediaForm || strings.HasPrefix(endpoint.BodyType, "multipart/") {
			return types.LocationForm, nil
		}
		return "", fmt.Errorf("%w: body media type %s", ErrUnsupportedFormat, endpoint.BodyType)
	default:
		return "", fmt.Errorf("%w: %s parameter %s", ErrUnsupportedFormat, param.In, parameter)
	}
}

// LookupLocation loads an OpenAPI document and resolves the location of
// parameter for the operation addressed by method and rawURL
func LookupLocation(filePath, method, rawURL, parameter string) (string, error) {
	p, err := NewOpenAPIParser(filePath)
	if err != nil {
		return "", err
	}
	endpoints, err := p.Parse()
	if err != nil {
		return "", err
	}
	ep, err := FindEndpoint(endpoints, method, rawURL)
	if err != nil {
		return "", err
	}
	return ResolveLocation(ep, parameter)
}
