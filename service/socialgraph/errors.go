package socialgraph

import "errors"

var (
	// ErrFailedDependency 上流サービスがHTTP 424を返した
	//
	// 初期化時のみ許容され、空のロスターとして扱われます。
	ErrFailedDependency = errors.New("failed dependency")
	// ErrRuntime 購読の確立失敗など内部状態の不整合
	ErrRuntime = errors.New("runtime error")
	// ErrNetwork PeopleHub / プレゼンスAPIの呼び出し失敗
	ErrNetwork = errors.New("network error")
	// ErrInvalidArgument XUIDのパース失敗など不正な入力
	ErrInvalidArgument = errors.New("invalid argument")
)
