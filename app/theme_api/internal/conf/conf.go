package conf

// Bootstrap 服务启动配置
type Bootstrap struct {
	Server *Server
	Engine *Engine
}

type Server struct {
	Http *HTTP
}

type HTTP struct {
	Addr    string
	Timeout string
}

// Engine 合成引擎配置入口，引擎自身参数沿用 theme_synth 的 yaml 配置
type Engine struct {
	ConfigPath string `json:"config_path"`
	EnvFile    string `json:"env_file"`
}
