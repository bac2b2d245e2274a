package domain

var Tables = []interface{}{
	// System
	&SysConfig{},
	&SysUser{},
	&SysOprLog{},
	// Catalog
	&Product{},
	&Sale{},
}
