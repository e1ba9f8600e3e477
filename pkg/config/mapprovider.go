package config

// localMapProvider adapts a plain map[string]any into a koanf.Provider so
// each Source's Load() result can be merged without a confmap dependency.
type localMapProvider struct {
	data map[string]any
}

func mapProvider(data map[string]any) *localMapProvider {
	return &localMapProvider{data: data}
}

func (p *localMapProvider) ReadBytes() ([]byte, error) {
	return nil, errUnsupported
}

func (p *localMapProvider) Read() (map[string]any, error) {
	return p.data, nil
}
