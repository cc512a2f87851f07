package logging

import (
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

const serviceContextKey = "serviceContext"

// serviceContext ログエントリに付く発行元サービスの識別子
type serviceContext struct {
	Name    string
	Version string
}

// MarshalLogObject implements zapcore.ObjectMarshaler interface.
func (sc serviceContext) MarshalLogObject(enc zapcore.ObjectEncoder) error {
	enc.AddString("service", sc.Name)
	enc.AddString("version", sc.Version)
	return nil
}

// ServiceContext serviceContext Field
func ServiceContext(name, version string) zap.Field {
	return zap.Object(serviceContextKey, serviceContext{Name: name, Version: version})
}

// serviceCore 書き込み時にserviceContextを補うCore
//
// ログサイトで明示的にServiceContextが渡されている場合は二重に付けません。
type serviceCore struct {
	zapcore.Core
	service serviceContext
}

func newServiceCore(c zapcore.Core, name, version string) zapcore.Core {
	return &serviceCore{Core: c, service: serviceContext{Name: name, Version: version}}
}

func (c *serviceCore) With(fields []zap.Field) zapcore.Core {
	return &serviceCore{Core: c.Core.With(fields), service: c.service}
}

func (c *serviceCore) Check(ent zapcore.Entry, ce *zapcore.CheckedEntry) *zapcore.CheckedEntry {
	if c.Enabled(ent.Level) {
		return ce.AddCore(ent, c)
	}
	return ce
}

func (c *serviceCore) Write(ent zapcore.Entry, fields []zapcore.Field) error {
	for i := range fields {
		if fields[i].Key == serviceContextKey {
			return c.Core.Write(ent, fields)
		}
	}
	return c.Core.Write(ent, append(fields, ServiceContext(c.service.Name, c.service.Version)))
}
