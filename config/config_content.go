package config

// DefaultConfigContent 默认配置文件内容，包含详细说明
const DefaultConfigContent = `# hostsync 配置文件

# 规则列表配置
lists:
  # 远程列表的本地镜像目录
  mirror_dir: "./mirrors"
  # 自动刷新间隔（小时），0 表示只在启动和手动触发时刷新
  update_interval_hours: 24
  # 列表条目
  # location 支持:
  # - http:// 或 https:// 远程列表，按 If-Modified-Since 增量下载
  # - content:/path 本地引用，需要可读权限，不下载
  # - file:/path 本地文件，不下载
  # - 单个主机名，例如 ads.example.com，不下载
  items:
    - title: "StevenBlack unified"
      location: "https://raw.githubusercontent.com/StevenBlack/hosts/master/hosts"
    - title: "AdAway"
      location: "https://adaway.org/hosts.txt"
    - title: "Peter Lowe"
      location: "https://pgl.yoyo.org/adservers/serverlist.php?hostformat=hosts&showintro=0&mimetype=plaintext"
      enabled: false

# 下载配置
http:
  # 连接超时（毫秒），默认 10000
  connect_timeout_ms: 10000
  # 单次读取超时（毫秒），默认 10000
  # 只要数据持续到达，慢速下载不会被中断
  read_timeout_ms: 10000
  user_agent: "hostsync/1.0"

# 刷新配置
refresh:
  # 并发下载数，0 表示不限制
  pool_size: 0
  # 等待下载完成时输出进度日志的间隔（秒）
  liveness_interval_seconds: 10

# HTTP 管理接口
webapi:
  # 是否启用，默认 true
  enabled: true
  # 监听地址
  listen_addr: "127.0.0.1:8088"

# 系统配置
system:
  # 日志级别: debug, info, warn, error
  log_level: "info"

# 统计配置
stats:
  # 保留的刷新周期历史条数
  history_size: 20
`
