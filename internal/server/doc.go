/*
包 server 提供协调层管理端 HTTP 服务器的生命周期管理，
支持非阻塞启动、优雅关闭与系统信号监听。

# 核心类型

  - Manager：封装 net/http.Server，持有监听器与异步错误通道，
    提供 Start/Shutdown/WaitForShutdown 等生命周期方法。
  - Config：监听地址、读写超时与优雅关闭超时。

# 主要能力

  - 非阻塞启动：Start 在后台 goroutine 中运行服务。
  - 优雅关闭：Shutdown 在配置的超时内完成请求排空。
  - 信号监听：WaitForShutdown 监听 SIGINT/SIGTERM。
  - 错误传播：Errors() 返回异步错误通道。
*/
package server
