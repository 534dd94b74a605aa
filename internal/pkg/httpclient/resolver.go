package httpclient

import (
	"fmt"
	"strconv"

	"shopflow/internal/pkg/nacos"
)

// Resolver 把逻辑服务名解析为 base URL
type Resolver interface {
	Resolve(service string) (string, error)
}

// StaticResolver 使用配置中的固定地址
type StaticResolver map[string]string

func (r StaticResolver) Resolve(service string) (string, error) {
	if u, ok := r[service]; ok && u != "" {
		return u, nil
	}
	return "", fmt.Errorf("no address configured for service %s", service)
}

// NacosResolver 每次调用都从 Nacos 选择一个健康实例，失败时回退到静态地址
type NacosResolver struct {
	client   *nacos.Client
	fallback StaticResolver
}

func NewNacosResolver(client *nacos.Client, fallback StaticResolver) *NacosResolver {
	return &NacosResolver{client: client, fallback: fallback}
}

func (r *NacosResolver) Resolve(service string) (string, error) {
	ip, port, err := r.client.DiscoverServiceInstance(service)
	if err != nil {
		if u, ferr := r.fallback.Resolve(service); ferr == nil {
			return u, nil
		}
		return "", err
	}
	return "http://" + ip + ":" + strconv.Itoa(port), nil
}
