//
//  Copyright © Manetu Inc. All rights reserved.
//

package common

import (
	"encoding/json"
	"fmt"
)

// PrettyJSON renders data as indented JSON for debug output.  Values that
// cannot be marshalled are rendered with %+v.
func PrettyJSON(data interface{}) string {
	p, err := json.MarshalIndent(data, "", "\t")
	if err != nil {
		return fmt.Sprintf("%+v", data)
	}
	return string(p)
}
