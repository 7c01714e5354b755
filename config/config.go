package config

import (
	"encoding/json"
	"os"
	"path/filepath"
	"strings"

	"github.com/BurntSushi/toml"
	"github.com/go-playground/validator/v10"
	"github.com/pkg/errors"
	"gopkg.in/yaml.v3"
)

var validate = validator.New()

// Load 读取配置文件并写入 object，依次做解码、设置默认值、校验
// 支持 .yaml/.yml, .toml, .json
func Load(path string, object any) error {
	buf, err := os.ReadFile(path)
	if err != nil {
		return errors.Wrapf(err, "os.ReadFile failed, path: %s", path)
	}

	data, err := Decode(filepath.Ext(path), buf)
	if err != nil {
		return errors.WithMessagef(err, "decode %s failed", path)
	}

	return LoadMap(data, object)
}

// LoadMap 与 Load 相同，数据已经解码
func LoadMap(data map[string]any, object any) error {
	if err := Bind(data, object); err != nil {
		return errors.WithMessage(err, "bind failed")
	}
	if err := SetDefaults(object); err != nil {
		return errors.WithMessage(err, "set defaults failed")
	}
	if err := Validate(object); err != nil {
		return err
	}
	return nil
}

// Decode 按扩展名解码
func Decode(ext string, buf []byte) (map[string]any, error) {
	data := map[string]any{}
	switch strings.ToLower(strings.TrimPrefix(ext, ".")) {
	case "yaml", "yml":
		if err := yaml.Unmarshal(buf, &data); err != nil {
			return nil, errors.Wrap(err, "yaml.Unmarshal failed")
		}
	case "toml":
		if err := toml.Unmarshal(buf, &data); err != nil {
			return nil, errors.Wrap(err, "toml.Unmarshal failed")
		}
	case "json":
		if err := json.Unmarshal(buf, &data); err != nil {
			return nil, errors.Wrap(err, "json.Unmarshal failed")
		}
	default:
		return nil, errors.Errorf("unsupported config format: %q", ext)
	}
	return data, nil
}

// Validate 使用 validate tag 校验
func Validate(object any) error {
	if err := validate.Struct(object); err != nil {
		return errors.Wrap(err, "validate failed")
	}
	return nil
}
